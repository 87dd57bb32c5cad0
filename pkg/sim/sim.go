// Package sim implements the top-level runner (C11): the SimulationContext
// named in spec.md §9's redesign notes, explicitly threaded through every
// call instead of living behind process-wide singletons.
//
// Grounded on oisee-z80-optimizer's top-level Optimizer type (one struct
// owning every stage's inputs, built once per run, never a package-level
// global) generalized from a single-pass optimizer to a two-track
// (AC-code / MC-code) subgraph executor.
package sim

import (
	"encoding/binary"
	"math"

	"github.com/oisee/dpusim/internal/dlog"
	"github.com/oisee/dpusim/internal/simcfg"
	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/internal/trace"
	"github.com/oisee/dpusim/pkg/bank"
	"github.com/oisee/dpusim/pkg/ddr"
	"github.com/oisee/dpusim/pkg/engine"
	"github.com/oisee/dpusim/pkg/fixed"
	"github.com/oisee/dpusim/pkg/isa"
	"github.com/oisee/dpusim/pkg/kernel/alu"
	"github.com/oisee/dpusim/pkg/kernel/bfp"
	"github.com/oisee/dpusim/pkg/kernel/conv"
	"github.com/oisee/dpusim/pkg/kernel/dwconv"
	"github.com/oisee/dpusim/pkg/kernel/elew"
	"github.com/oisee/dpusim/pkg/kernel/move"
	"github.com/oisee/dpusim/pkg/kernel/norm"
	"github.com/oisee/dpusim/pkg/kernel/pool"
	"github.com/oisee/dpusim/pkg/program"
	"github.com/oisee/dpusim/pkg/target"
)

// Simulation owns every piece of state one program run needs. Nothing
// about it is a package-level global; cmd/dpusim's run command constructs
// a fresh one for each subgraph of the program.
type Simulation struct {
	Target *target.Params
	DDR    *ddr.Store
	Banks  *bank.Store
	Table  isa.Table
	Cfg    *simcfg.Config

	// trace is unexported: it holds the most recent Execute call's debug
	// events for a caller that wants a co-sim checkpoint (cmd/dpusim's
	// --trace-out), without growing the struct's spec-pinned field set.
	trace *trace.EventLog
}

// New builds a Simulation. nibble addressing (DPU4F's 4-bit bank lines)
// is taken from t.Generation, matching pkg/bank.NewStore's own convention.
func New(cfg *simcfg.Config, t *target.Params, tbl isa.Table) *Simulation {
	return &Simulation{
		Target: t,
		DDR:    ddr.NewStore(cfg.HPWidth()),
		Banks:  bank.NewStore(t, t.Generation == target.DPU4F),
		Table:  tbl,
		Cfg:    cfg,
	}
}

// handlers assembles the engine.HandlerTable from every pkg/kernel/*
// package — the one place the bit-level action ops are wired together,
// per engine's doc comment ("kernel packages... never need to be imported
// back into engine itself").
func handlers() engine.HandlerTable {
	return engine.HandlerTable{
		isa.CONV:    conv.Conv,
		isa.ALU:     alu.ALU,
		isa.POOL:    pool.Pool,
		isa.DPTWISE: dwconv.DPTwise,
		isa.ELEW:    elew.Elew,
		isa.LOAD:    move.Load,
		isa.SAVE:    move.Save,
	}
}

// Execute runs one subgraph: allocates its DDR regs, decodes and runs its
// MC-code program against the bit-level engine, then runs its AC-code ops
// against the CPU-side norm/BFP reference kernels. The caller is
// responsible for program.CopyIn-ing sg.Inputs before Execute and
// program.CopyOut-ing sg.Outputs from s.Result() after.
func (s *Simulation) Execute(sg program.Subgraph) error {
	if err := s.DDR.Initial(sg.RegSizes, sg.RegConsts); err != nil {
		return simerr.Wrap(simerr.Internal, err, "sim: allocating subgraph DDR regs")
	}
	if seed := s.Cfg.FuzzSeed(); seed != 0 {
		s.DDR.FillRandom(seed)
	}

	dec := isa.NewDecoder(s.Table, s.Target.Generation)
	instrs, err := dec.DecodeProgram(sg.McCode)
	if err != nil {
		return simerr.Wrap(simerr.Internal, err, "sim: decoding mc_code")
	}

	ctx := engine.NewContext(s.Target, s.DDR, s.Banks, s.Table, s.Cfg)
	if err := engine.Run(ctx, instrs, handlers()); err != nil {
		return err
	}
	s.trace = ctx.Trace
	dlog.Infof("sim: ran %d mc_code instructions", len(instrs))

	for _, op := range sg.AcCode {
		if err := s.runAcOp(op, sg.AcReg); err != nil {
			return simerr.Wrap(simerr.Internal, err, "sim: ac_code op %q", op)
		}
	}
	return nil
}

// runAcOp applies one CPU-side op in place over sg.AcReg's full DDR
// extent. The JSON manifest's ac_code is a bare op-name list with no
// per-op attribute encoding (spec.md's distilled container never grew
// one), so every op runs with reference defaults against whichever
// register AcReg names, rather than per-call scale/zero-point/axis
// operands — documented as a scoping decision in DESIGN.md.
func (s *Simulation) runAcOp(op string, reg int) error {
	size, err := s.DDR.GetSize(reg)
	if err != nil {
		return err
	}
	full, err := s.DDR.GetAddr(reg, 0)
	if err != nil {
		return err
	}
	buf := full[:size]
	switch op {
	case "bfp":
		return s.runFloatOp(buf, func(block []float32) ([]float32, error) {
			return bfp.Quantize(block, 12, fixed.RoundDPU)
		})
	case "bfp-prime":
		return s.runFloatOp(buf, func(block []float32) ([]float32, error) {
			return bfp.QuantizePrime(block, 12, len(block), 2, fixed.RoundDPU)
		})
	case "approx_tanh":
		for i, b := range buf {
			x := float32(int8(b)) / 16.0
			buf[i] = byte(fixed.Saturate[int8](float64(norm.ApproxTanh(x)*16.0), -128, 127))
		}
		return nil
	case "l2_normalize-fix":
		vals := make([]int32, len(buf)/4)
		for i := range vals {
			vals[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
		}
		out, err := norm.L2NormFix(vals, 0, 8, fixed.RoundDPU, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		for i, v := range out {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
		}
		return nil
	case "qlinear-groupnorm", "qlinear-swish":
		// Both need per-channel weight/bias/scale operands the bare
		// op-name manifest has no field for; left as reference kernels
		// exercised directly by pkg/kernel/norm's own tests.
		return nil
	default:
		return simerr.New(simerr.UnknownOpcode, "sim: unrecognized ac_code op %q", op)
	}
}

// runFloatOp reinterprets buf as a contiguous float32 block, applies fn,
// and writes the result back in place.
func (s *Simulation) runFloatOp(buf []byte, fn func([]float32) ([]float32, error)) error {
	block := make([]float32, len(buf)/4)
	for i := range block {
		block[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	out, err := fn(block)
	if err != nil {
		return err
	}
	for i, v := range out {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return nil
}

// Result returns the DDR store holding the run's output tensors.
func (s *Simulation) Result() *ddr.Store {
	return s.DDR
}

// Trace returns the EventLog collected by the most recent Execute call, or
// nil before the first Execute. Used by cmd/dpusim's --trace-out to persist
// a co-sim checkpoint via internal/trace.SaveRun.
func (s *Simulation) Trace() *trace.EventLog {
	return s.trace
}
