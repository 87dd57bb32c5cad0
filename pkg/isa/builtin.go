package isa

import "github.com/oisee/dpusim/pkg/target"

// builder lays out fields sequentially into 32-bit words, starting after
// the shared opcode/dpdon/dpdby header in word 0. It exists so the field
// bit-offsets below are computed once, consistently, instead of by hand —
// matching the "derive the layout, don't hardcode it" discipline the ISA
// table itself enforces on every generation.
type builder struct {
	desc InstDesc
	word int
	pos  uint
}

func newBuilder(mnemonic string, typ InstType, opcode uint32) *builder {
	return &builder{
		desc: InstDesc{
			Mnemonic:  mnemonic,
			Type:      typ,
			Opcode:    opcode,
			DpdOnWord: 0, DpdOnPos: 8, DpdOnLen: 4,
			DpdByWord: 0, DpdByPos: 12, DpdByLen: 4,
			OpcodeWord: 0, OpcodePos: 0, OpcodeLen: 8,
		},
		word: 0,
		pos:  16,
	}
}

func (b *builder) u(name string, length uint, minus uint32) *builder {
	if b.pos+length > 32 {
		b.word++
		b.pos = 0
	}
	b.desc.Fields = append(b.desc.Fields, Field{
		Name: name, Kind: FieldUint, Minus: minus,
		Words: []WordSlice{{WordIndex: b.word, Pos: b.pos, Len: length}},
	})
	b.pos += length
	return b
}

// fullWord allocates an entire new 32-bit word to one field (DDR/bank
// addresses that don't fit alongside the header bits).
func (b *builder) fullWord(name string) *builder {
	b.word++
	b.pos = 0
	b.desc.Fields = append(b.desc.Fields, Field{
		Name: name, Kind: FieldUint,
		Words: []WordSlice{{WordIndex: b.word, Pos: 0, Len: 32}},
	})
	b.pos = 32
	return b
}

func (b *builder) build() InstDesc {
	b.desc.WordCount = b.word + 1
	return b.desc
}

// baseTable builds the canonical instruction layout shared by every
// generation; per-generation tables start from this and are adjusted
// where a generation changes field widths or adds fields.
func baseTable() map[InstType]InstDesc {
	m := map[InstType]InstDesc{}

	m[CONVINIT] = newBuilder("CONVINIT", CONVINIT, 0x01).
		u("kernel_h", 4, 1).u("kernel_w", 4, 1).u("stride_h", 3, 1).u("stride_w", 3, 1).
		u("pad_top", 4, 0).u("pad_bottom", 4, 0).u("pad_left", 4, 0).u("pad_right", 4, 0).
		u("bank_id_in", 6, 0).u("bank_id_out", 6, 0).
		u("bank_id_wgt", 6, 0).u("bank_id_bias", 6, 0).
		u("conv_num", 12, 0).
		u("act_type", 4, 0).u("shift_bias", 4, 0).u("shift_cut", 6, 0).
		u("shift_relusix", 4, 0).u("kh_iter", 3, 1).u("kw_iter", 3, 1).
		u("dest_mode", 2, 0).
		u("ic_iter", 6, 0).u("oc_iter", 6, 0).u("oh_iter", 6, 0).u("ow_iter", 6, 0).
		u("tile_icg", 6, 0).u("tile_ocg", 6, 0).u("tile_ohg", 6, 0).u("tile_owg", 6, 0).
		u("ow_offset", 4, 0).u("icg_offset", 4, 0).
		u("prelu_in", 8, 0).u("prelu_shift", 4, 0).
		u("hsigmoid_in", 8, 0).u("shift_hsigmoid", 4, 0).u("shift_hswish", 4, 0).
		u("batch_num", 4, 1).u("stride_batch", 12, 0).
		build()

	m[CONVADDR] = newBuilder("CONVADDR", CONVADDR, 0x02).
		u("addr_type", 2, 0).u("jump", 12, 0).u("jump_endl", 12, 0).
		u("h_num", 8, 1).u("invalid", 1, 0).
		fullWord("bank_addr").
		build()

	m[CONV] = newBuilder("CONV", CONV, 0x03).
		u("valid_pixel_parallel", 5, 1).u("length", 12, 1).
		build()

	m[ALUINIT] = newBuilder("ALUINIT", ALUINIT, 0x04).
		u("alu_mode", 5, 0).
		u("kernel_h", 4, 1).u("kernel_w", 4, 1).u("stride_h", 3, 1).u("stride_w", 3, 1).
		u("pad_top", 4, 0).u("pad_bottom", 4, 0).u("pad_left", 4, 0).u("pad_right", 4, 0).
		u("bank_id_in", 6, 0).u("bank_id_out", 6, 0).
		u("act_type", 4, 0).u("shift_cut", 6, 0).u("shift_bias", 4, 0).
		u("channel_group", 8, 0).
		u("prelu_in", 8, 0).u("prelu_shift", 4, 0).
		u("hsigmoid_in", 8, 0).u("shift_hsigmoid", 4, 0).u("shift_hswish", 4, 0).
		build()

	m[ALUADDR] = newBuilder("ALUADDR", ALUADDR, 0x05).
		u("addr_type", 2, 0).u("jump", 12, 0).
		fullWord("bank_addr").
		build()

	m[ALU] = newBuilder("ALU", ALU, 0x06).
		u("valid_pixel_parallel", 5, 1).u("length", 12, 1).
		build()

	m[POOLINIT] = newBuilder("POOLINIT", POOLINIT, 0x07).
		u("pool_type", 2, 0).
		u("kernel_h", 4, 1).u("kernel_w", 4, 1).u("stride_h", 3, 1).u("stride_w", 3, 1).
		u("pad_top", 4, 0).u("pad_bottom", 4, 0).u("pad_left", 4, 0).u("pad_right", 4, 0).
		u("bank_id_in", 6, 0).u("bank_id_out", 6, 0).
		u("channel_group", 8, 0).
		build()

	m[POOL] = newBuilder("POOL", POOL, 0x08).
		u("valid_pixel_parallel", 5, 1).u("length", 12, 1).
		build()

	m[DWINIT] = newBuilder("DWINIT", DWINIT, 0x09).
		u("kernel_h", 4, 1).u("kernel_w", 4, 1).u("stride_h", 3, 1).u("stride_w", 3, 1).
		u("pad_top", 4, 0).u("pad_bottom", 4, 0).u("pad_left", 4, 0).u("pad_right", 4, 0).
		u("bank_id_in", 6, 0).u("bank_id_out", 6, 0).
		u("bank_id_wgt", 6, 0).u("bank_id_bias", 6, 0).
		u("channel_group", 8, 0).
		u("act_type", 4, 0).u("shift_bias", 4, 0).u("shift_cut", 6, 0).
		build()

	m[DPTWISE] = newBuilder("DPTWISE", DPTWISE, 0x0a).
		u("valid_pixel_parallel", 5, 1).u("length", 12, 1).
		build()

	m[ELEWINIT] = newBuilder("ELEWINIT", ELEWINIT, 0x0b).
		u("elew_type", 2, 0).u("num_operands", 3, 2).
		u("bank_id_out", 6, 0).u("shift_a", 4, 0).u("shift_b", 4, 0).
		u("act_type", 4, 0).
		build()

	m[ELEW] = newBuilder("ELEW", ELEW, 0x0c).
		u("bank_id_a", 6, 0).u("bank_id_b", 6, 0).
		u("valid_pixel_parallel", 5, 1).u("length", 12, 1).
		build()

	m[LOAD] = newBuilder("LOAD", LOAD, 0x0d).
		u("mode", 2, 0).u("channel", 8, 0).u("block_num", 8, 1).
		fullWord("ddr_addr").
		u("bank_id", 6, 0).u("bank_addr", 12, 0).u("length", 16, 1).
		u("jump_read", 12, 0).u("jump_write", 12, 0).u("jump_write_endl", 12, 0).
		u("pad_start", 4, 0).u("pad_end", 4, 0).u("pad_idx", 8, 0).
		u("const_value", 8, 0).u("avg_mode", 1, 0).u("reg_id", 8, 0).
		build()

	m[SAVE] = newBuilder("SAVE", SAVE, 0x0e).
		u("mode", 2, 0).u("channel", 8, 0).u("block_num", 8, 1).
		fullWord("ddr_addr").
		u("bank_id", 6, 0).u("bank_addr", 12, 0).u("length", 16, 1).
		u("jump_read", 12, 0).u("jump_write", 12, 0).u("jump_write_endl", 12, 0).
		u("argmax", 1, 0).u("const_en", 1, 0).u("const_value", 8, 0).u("reg_id", 8, 0).
		build()

	m[END] = newBuilder("END", END, 0x0f).build()

	return m
}

// Builtin is the ISA table for every reference target. Every generation
// shares the base layout; XV2DPU/XV3DPU additionally expose kh_iter/
// kw_iter for reverse_kernel_iterate, already present in the base CONVINIT
// layout above, so no per-generation override is required there.
var Builtin Table

func init() {
	Builtin = Table{}
	for gen := range target.Builtin {
		Builtin[gen] = baseTable()
	}
	// XV2DPU/XV3DPU/DPUV3ME are not in target.Builtin's literal map (only
	// DPUV2/DPUV3E/DPUV4E/DPU4F/XVDPU are), so cover those three explicitly
	// for completeness of the ISA table.
	Builtin[target.XV2DPU] = baseTable()
	Builtin[target.XV3DPU] = baseTable()
	Builtin[target.DPUV3ME] = baseTable()
}
