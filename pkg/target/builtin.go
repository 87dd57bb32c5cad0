package target

// Builtin ships literal Params values for DPUV2, DPUV3E, DPUV4E, DPU4F and
// XVDPU (no entry for DPUV3ME, XV2DPU or XV3DPU) so tests and the CLI work
// without an external descriptor file. Loading a real descriptor
// (keyed by the subgraph's dpu_fingerprint) is handled by Load in load.go,
// which does not fall back to this table; ByName looks generations up
// here, for the CLI and this repository's test suite.
var Builtin = map[Generation]*Params{
	DPUV2:  newDPUV2(),
	DPUV3E: newDPUV3E(),
	DPUV4E: newDPUV4E(),
	DPU4F:  newDPU4F(),
	XVDPU:  newXVDPU(),
}

func mustFinalize(p *Params) *Params {
	if err := p.Finalize(); err != nil {
		panic(err) // built-in tables are statically correct by construction
	}
	return p
}

func newDPUV2() *Params {
	return mustFinalize(&Params{
		Generation:    DPUV2,
		ProcessorType: "DPUCZDX8G",
		HPWidth:       16,
		ICP:           16,
		OCP:           16,
		BankGroups: []BankGroup{
			{Name: "IFM0", Type: GroupIFM, BaseBankID: 0, BankNum: 8, BankWidth: 16, BankDepth: 2048},
			{Name: "IFM1", Type: GroupIFM, BaseBankID: 8, BankNum: 8, BankWidth: 16, BankDepth: 2048},
			{Name: "WGT", Type: GroupParam, BaseBankID: 16, BankNum: 16, BankWidth: 16, BankDepth: 12288},
			{Name: "BIAS", Type: GroupParam, BaseBankID: 32, BankNum: 1, BankWidth: 16, BankDepth: 2048},
			{Name: "VIRT", Type: GroupVirtual, BaseBankID: 33, BankNum: 8, BankWidth: 16, BankDepth: 2048},
		},
		EngineBankGroups: map[string][]string{
			"conv-in":    {"IFM0", "IFM1"},
			"conv-wgt":   {"WGT"},
			"conv-bias":  {"BIAS"},
			"conv-out":   {"IFM0", "IFM1"},
			"load-out":   {"IFM0", "IFM1", "WGT", "BIAS", "VIRT"},
			"save-in":    {"IFM0", "IFM1", "VIRT"},
			"pool-in":    {"IFM0", "IFM1"},
			"pool-out":   {"IFM0", "IFM1"},
			"dwconv-in":  {"IFM0", "IFM1"},
			"dwconv-out": {"IFM0", "IFM1"},
			"elew-in":    {"IFM0", "IFM1", "VIRT"},
			"elew-out":   {"IFM0", "IFM1"},
			"alu-in":     {"IFM0", "IFM1", "VIRT"},
			"alu-out":    {"IFM0", "IFM1"},
		},
		InstrLimits: map[string]string{
			"conv-kernel": "1-16",
			"conv-stride": "1-8",
			"pool-kernel": "1-8,14",
			"pool-stride": "1-8",
		},
		SupportedActivations: map[ActivationKind]bool{
			ActNone: true, ActRelu: true, ActLeaky: true, ActRelu6: true, ActPRelu: true,
		},
	})
}

func newDPUV3E() *Params {
	p := newDPUV2()
	p.Generation = DPUV3E
	p.ProcessorType = "DPUCAHX8H"
	p.SupportedActivations[ActHSigmoid] = true
	p.SupportedActivations[ActHSwish] = true
	return mustFinalize(p)
}

func newDPUV4E() *Params {
	p := newDPUV2()
	p.Generation = DPUV4E
	p.ProcessorType = "DPUCVDX8H"
	p.AIEICP = 32
	p.AIEOCP = 8
	return mustFinalize(p)
}

func newDPU4F() *Params {
	p := newDPUV2()
	p.Generation = DPU4F
	p.ProcessorType = "DPUCADF8H"
	p.ICP = 32
	p.OCP = 32
	return mustFinalize(p)
}

func newXVDPU() *Params {
	p := newDPUV2()
	p.Generation = XVDPU
	p.ProcessorType = "DPUCVDX8G"
	p.TileEnabled = true
	p.SupportedActivations[ActHSigmoid] = true
	p.SupportedActivations[ActHSwish] = true
	return mustFinalize(p)
}
