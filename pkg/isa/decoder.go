package isa

import (
	"encoding/binary"

	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/target"
)

// Decoder reads a bit-packed program for one generation and emits typed
// Instruction records in program order. Field extraction is a composition
// of little-endian 32-bit word reads and LSB-first bit masks, never a
// reinterpret-cast of raw memory (spec.md §9 "Bit-packed decoding").
type Decoder struct {
	Table      Table
	Generation target.Generation
}

// NewDecoder builds a Decoder bound to one generation's ISA table.
func NewDecoder(tbl Table, gen target.Generation) *Decoder {
	return &Decoder{Table: tbl, Generation: gen}
}

func extractBits(word uint32, pos, length uint) uint32 {
	if length >= 32 {
		return word
	}
	mask := uint32(1)<<length - 1
	return (word >> pos) & mask
}

func insertBits(word uint32, pos, length uint, value uint32) uint32 {
	if length >= 32 {
		return value
	}
	mask := uint32(1)<<length - 1
	word &^= mask << pos
	word |= (value & mask) << pos
	return word
}

// readWords unpacks a little-endian byte stream into 32-bit words.
func readWords(data []byte) ([]uint32, error) {
	if len(data)%4 != 0 {
		return nil, simerr.New(simerr.ParameterFailed, "isa: program length %d is not a multiple of 4", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words, nil
}

// assemble reconstructs a field's raw value from its word slices, low
// slice first, then adds back the per-field "minus" bias.
func assembleField(f Field, words []uint32) uint32 {
	var v uint32
	var shift uint
	for _, ws := range f.Words {
		bits := extractBits(words[ws.WordIndex], ws.Pos, ws.Len)
		v |= bits << shift
		shift += ws.Len
	}
	return v + f.Minus
}

// Decode reads one instruction starting at words[0], returning it along
// with the number of words consumed.
func (d *Decoder) Decode(words []uint32) (Instruction, int, error) {
	if len(words) == 0 {
		return Instruction{}, 0, simerr.New(simerr.ParameterFailed, "isa: Decode called with no words")
	}
	opcode := extractBits(words[0], 0, 8)
	desc, ok := d.Table.ByOpcode(d.Generation, opcode)
	if !ok {
		return Instruction{}, 0, simerr.New(simerr.UnknownOpcode, "isa: unknown opcode 0x%02x for generation %v", opcode, d.Generation)
	}
	if len(words) < desc.WordCount {
		return Instruction{}, 0, simerr.New(simerr.ParameterFailed, "isa: %s needs %d words, only %d remain", desc.Mnemonic, desc.WordCount, len(words))
	}
	slice := words[:desc.WordCount]
	instr := Instruction{
		Type:       desc.Type,
		Generation: d.Generation,
		DpdOn:      extractBits(slice[desc.DpdOnWord], desc.DpdOnPos, desc.DpdOnLen),
		DpdBy:      extractBits(slice[desc.DpdByWord], desc.DpdByPos, desc.DpdByLen),
		Fields:     make(map[string]uint32, len(desc.Fields)),
		Strings:    map[string]string{},
	}
	for _, f := range desc.Fields {
		v := assembleField(f, slice)
		if f.Kind == FieldString {
			name := "?"
			if int(v) < len(f.Names) {
				name = f.Names[v]
			}
			instr.Strings[f.Name] = name
		} else {
			instr.Fields[f.Name] = v
		}
	}
	return instr, desc.WordCount, nil
}

// DecodeProgram decodes an entire byte stream into an ordered instruction
// list. Any unknown opcode is fatal (spec.md §4.4).
func (d *Decoder) DecodeProgram(data []byte) ([]Instruction, error) {
	words, err := readWords(data)
	if err != nil {
		return nil, err
	}
	var out []Instruction
	for len(words) > 0 {
		instr, n, err := d.Decode(words)
		if err != nil {
			return nil, err
		}
		out = append(out, instr)
		words = words[n:]
	}
	return out, nil
}

// Encode packs an Instruction back into its raw little-endian words,
// using the ISA table's field layout for instr.Generation.
func (d *Decoder) Encode(instr Instruction) ([]byte, error) {
	desc, ok := d.Table[instr.Generation][instr.Type]
	if !ok {
		return nil, simerr.New(simerr.Internal, "isa: no ISA descriptor for %v/%v", instr.Generation, instr.Type)
	}
	words := make([]uint32, desc.WordCount)
	words[desc.OpcodeWord] = insertBits(words[desc.OpcodeWord], desc.OpcodePos, desc.OpcodeLen, desc.Opcode)
	words[desc.DpdOnWord] = insertBits(words[desc.DpdOnWord], desc.DpdOnPos, desc.DpdOnLen, instr.DpdOn)
	words[desc.DpdByWord] = insertBits(words[desc.DpdByWord], desc.DpdByPos, desc.DpdByLen, instr.DpdBy)
	for _, f := range desc.Fields {
		var raw uint32
		if f.Kind == FieldString {
			for i, n := range f.Names {
				if n == instr.Strings[f.Name] {
					raw = uint32(i)
					break
				}
			}
		} else {
			raw = instr.Fields[f.Name] - f.Minus
		}
		shift := uint(0)
		for _, ws := range f.Words {
			part := extractBits(raw, shift, ws.Len)
			words[ws.WordIndex] = insertBits(words[ws.WordIndex], ws.Pos, ws.Len, part)
			shift += ws.Len
		}
	}
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf, nil
}

// CrossCheck re-encodes each instruction and compares it word-for-word
// against mcCode, the program's packed binary. A mismatch is fatal
// (spec.md §6, "the simulator ... cross-checks each 4-byte word of
// mc_code against what it would have encoded").
func (d *Decoder) CrossCheck(instrs []Instruction, mcCode []byte) error {
	var want []byte
	for _, instr := range instrs {
		enc, err := d.Encode(instr)
		if err != nil {
			return err
		}
		want = append(want, enc...)
	}
	if len(want) != len(mcCode) {
		return simerr.New(simerr.ParameterFailed, "isa: cross-check length mismatch: encoded %d bytes, mc_code has %d", len(want), len(mcCode))
	}
	for i := range want {
		if want[i] != mcCode[i] {
			return simerr.New(simerr.ParameterFailed, "isa: cross-check mismatch at byte %d: encoded 0x%02x, mc_code 0x%02x", i, want[i], mcCode[i])
		}
	}
	return nil
}
