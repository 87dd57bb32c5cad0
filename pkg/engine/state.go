// Package engine implements the execution engine (C6): single-threaded,
// deterministic dispatch over a decoded instruction stream, maintaining
// the shared "current setup state" (CONVINIT parameters, pending address
// plan, conv-remaining counter) that a following action op consumes.
//
// Grounded on oisee-z80-optimizer's pkg/cpu.Exec dispatch shape, reworked
// from a giant switch into a caller-supplied handler table so kernel
// packages (which depend on engine.Context) never need to be imported
// back into engine itself.
package engine

import "github.com/oisee/dpusim/pkg/isa"

// ConvInitState is the stashed state of the most recently decoded
// CONVINIT, consumed by the following CONV (spec.md "Shared engine state").
type ConvInitState struct {
	KernelH, KernelW     uint32
	StrideH, StrideW     uint32
	PadTop, PadBottom    uint32
	PadLeft, PadRight    uint32
	BankIDIn, BankIDOut  uint32
	BankIDWgt, BankIDBias uint32
	ConvNum              uint32
	ActType              uint32
	ShiftBias, ShiftCut  uint32
	ShiftRelusix         uint32
	KhIter, KwIter       uint32
	DestMode             uint32
	// Tiling/iteration counters feeding the CONV geometry formulas
	// (spec.md §4.7 "Geometry"): dst_h = oh_iter*tile_ohg*ohp,
	// dst_w = ow_iter*tile_owg*owp - ow_offset,
	// ic = ic_iter*tile_icg*icp - icg_offset, oc = oc_iter*tile_ocg*ocp.
	IcIter, OcIter, OhIter, OwIter     uint32
	TileIcg, TileOcg, TileOhg, TileOwg uint32
	OwOffset, IcgOffset                uint32
	// Activation-formula operands decoded but otherwise unused until a
	// non-NONE/RELU/LEAKY/RELU6 act_type selects them (spec.md §4.7
	// "Activation + shift_cut phase").
	PreluIn, PreluShift                       uint32
	HsigmoidIn, ShiftHsigmoid, ShiftHswish    uint32
	// BatchNum/StrideBatch drive DPUV4E's multi-batch packing (spec.md
	// §4.7 "Special sub-flows"): batch_num sub-tiles, each stride_batch
	// source columns apart, are packed side by side into one output tile.
	BatchNum, StrideBatch uint32
}

func newConvInitState(i isa.Instruction) *ConvInitState {
	return &ConvInitState{
		KernelH: i.Field("kernel_h"), KernelW: i.Field("kernel_w"),
		StrideH: i.Field("stride_h"), StrideW: i.Field("stride_w"),
		PadTop: i.Field("pad_top"), PadBottom: i.Field("pad_bottom"),
		PadLeft: i.Field("pad_left"), PadRight: i.Field("pad_right"),
		BankIDIn: i.Field("bank_id_in"), BankIDOut: i.Field("bank_id_out"),
		BankIDWgt: i.Field("bank_id_wgt"), BankIDBias: i.Field("bank_id_bias"),
		ConvNum: i.Field("conv_num"),
		ActType: i.Field("act_type"), ShiftBias: i.Field("shift_bias"),
		ShiftCut: i.Field("shift_cut"), ShiftRelusix: i.Field("shift_relusix"),
		KhIter: i.Field("kh_iter"), KwIter: i.Field("kw_iter"),
		DestMode: i.Field("dest_mode"),
		IcIter: i.Field("ic_iter"), OcIter: i.Field("oc_iter"),
		OhIter: i.Field("oh_iter"), OwIter: i.Field("ow_iter"),
		TileIcg: i.Field("tile_icg"), TileOcg: i.Field("tile_ocg"),
		TileOhg: i.Field("tile_ohg"), TileOwg: i.Field("tile_owg"),
		OwOffset: i.Field("ow_offset"), IcgOffset: i.Field("icg_offset"),
		PreluIn: i.Field("prelu_in"), PreluShift: i.Field("prelu_shift"),
		HsigmoidIn: i.Field("hsigmoid_in"), ShiftHsigmoid: i.Field("shift_hsigmoid"),
		ShiftHswish: i.Field("shift_hswish"),
		BatchNum:    i.Field("batch_num"), StrideBatch: i.Field("stride_batch"),
	}
}

// AluInitState is the stashed state of the most recently decoded ALUINIT.
type AluInitState struct {
	AluMode                              uint32
	KernelH, KernelW                     uint32
	StrideH, StrideW                     uint32
	PadTop, PadBottom, PadLeft, PadRight uint32
	BankIDIn, BankIDOut                  uint32
	ActType, ShiftCut, ShiftBias         uint32
	ChannelGroup                         uint32
	PreluIn, PreluShift                    uint32
	HsigmoidIn, ShiftHsigmoid, ShiftHswish uint32
}

func newAluInitState(i isa.Instruction) *AluInitState {
	return &AluInitState{
		AluMode: i.Field("alu_mode"),
		KernelH: i.Field("kernel_h"), KernelW: i.Field("kernel_w"),
		StrideH: i.Field("stride_h"), StrideW: i.Field("stride_w"),
		PadTop: i.Field("pad_top"), PadBottom: i.Field("pad_bottom"),
		PadLeft: i.Field("pad_left"), PadRight: i.Field("pad_right"),
		BankIDIn: i.Field("bank_id_in"), BankIDOut: i.Field("bank_id_out"),
		ActType: i.Field("act_type"), ShiftCut: i.Field("shift_cut"),
		ShiftBias: i.Field("shift_bias"), ChannelGroup: i.Field("channel_group"),
		PreluIn: i.Field("prelu_in"), PreluShift: i.Field("prelu_shift"),
		HsigmoidIn: i.Field("hsigmoid_in"), ShiftHsigmoid: i.Field("shift_hsigmoid"),
		ShiftHswish: i.Field("shift_hswish"),
	}
}

// PoolInitState is the stashed state of the most recently decoded POOLINIT.
type PoolInitState struct {
	PoolType                             uint32
	KernelH, KernelW                     uint32
	StrideH, StrideW                     uint32
	PadTop, PadBottom, PadLeft, PadRight uint32
	BankIDIn, BankIDOut                  uint32
	ChannelGroup                         uint32
}

func newPoolInitState(i isa.Instruction) *PoolInitState {
	return &PoolInitState{
		PoolType: i.Field("pool_type"),
		KernelH: i.Field("kernel_h"), KernelW: i.Field("kernel_w"),
		StrideH: i.Field("stride_h"), StrideW: i.Field("stride_w"),
		PadTop: i.Field("pad_top"), PadBottom: i.Field("pad_bottom"),
		PadLeft: i.Field("pad_left"), PadRight: i.Field("pad_right"),
		BankIDIn: i.Field("bank_id_in"), BankIDOut: i.Field("bank_id_out"),
		ChannelGroup: i.Field("channel_group"),
	}
}

// DWInitState is the stashed state of the most recently decoded DWINIT
// (depthwise convolution).
type DWInitState struct {
	KernelH, KernelW                     uint32
	StrideH, StrideW                     uint32
	PadTop, PadBottom, PadLeft, PadRight uint32
	BankIDIn, BankIDOut                  uint32
	BankIDWgt, BankIDBias                uint32
	ChannelGroup                         uint32
	ActType, ShiftBias, ShiftCut         uint32
}

func newDWInitState(i isa.Instruction) *DWInitState {
	return &DWInitState{
		KernelH: i.Field("kernel_h"), KernelW: i.Field("kernel_w"),
		StrideH: i.Field("stride_h"), StrideW: i.Field("stride_w"),
		PadTop: i.Field("pad_top"), PadBottom: i.Field("pad_bottom"),
		PadLeft: i.Field("pad_left"), PadRight: i.Field("pad_right"),
		BankIDIn: i.Field("bank_id_in"), BankIDOut: i.Field("bank_id_out"),
		BankIDWgt: i.Field("bank_id_wgt"), BankIDBias: i.Field("bank_id_bias"),
		ChannelGroup: i.Field("channel_group"),
		ActType:      i.Field("act_type"), ShiftBias: i.Field("shift_bias"), ShiftCut: i.Field("shift_cut"),
	}
}

// ElewInitState is the stashed state of the most recently decoded ELEWINIT.
type ElewInitState struct {
	ElewType              uint32
	NumOperands           uint32
	BankIDOut             uint32
	ShiftA, ShiftB        uint32
	ActType               uint32
}

func newElewInitState(i isa.Instruction) *ElewInitState {
	return &ElewInitState{
		ElewType: i.Field("elew_type"), NumOperands: i.Field("num_operands"),
		BankIDOut: i.Field("bank_id_out"), ShiftA: i.Field("shift_a"), ShiftB: i.Field("shift_b"),
		ActType: i.Field("act_type"),
	}
}

// AddrEntry is one pending address-plan descriptor, accumulated between a
// CONVINIT/ALUINIT and its CONV/ALU action op (spec.md "Pending ConvAddr
// plan"). Type is the raw addr_type field value; its meaning (IFM, WGT,
// BIAS, OFM, IFM_ELEW) is generation- and engine-specific and is
// interpreted by the consuming kernel, not by the engine itself.
type AddrEntry struct {
	Type     uint32
	Jump     uint32
	JumpEndl uint32
	HNum     uint32
	Invalid  bool
	BankAddr uint32
}

func newAddrEntry(i isa.Instruction) AddrEntry {
	return AddrEntry{
		Type: i.Field("addr_type"), Jump: i.Field("jump"),
		JumpEndl: i.Field("jump_endl"), HNum: i.Field("h_num"),
		Invalid:  i.Field("invalid") != 0,
		BankAddr: i.Field("bank_addr"),
	}
}
