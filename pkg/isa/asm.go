package isa

import (
	"strconv"
	"strings"

	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/target"
)

// ParseAssembly decodes ac_code text lines into Instruction records,
// independently of the binary decoder, so its output can be cross-checked
// against mc_code (spec.md §6). Each line is "MNEMONIC key=value ...";
// blank lines and lines starting with "#" are skipped. dpdon/dpdby are
// written as ordinary key=value pairs.
func ParseAssembly(lines []string, gen target.Generation, tbl Table) ([]Instruction, error) {
	var out []Instruction
	for lineNo, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := strings.Fields(line)
		mnemonic := tokens[0]
		desc, ok := tbl.ByMnemonic(gen, mnemonic)
		if !ok {
			return nil, simerr.New(simerr.ParameterFailed, "isa: ac_code line %d: unknown mnemonic %q", lineNo+1, mnemonic)
		}
		instr := Instruction{
			Type:       desc.Type,
			Generation: gen,
			Fields:     map[string]uint32{},
			Strings:    map[string]string{},
		}
		for _, tok := range tokens[1:] {
			kv := strings.SplitN(tok, "=", 2)
			if len(kv) != 2 {
				return nil, simerr.New(simerr.ParameterFailed, "isa: ac_code line %d: malformed operand %q", lineNo+1, tok)
			}
			key, val := kv[0], kv[1]
			switch key {
			case "dpdon":
				n, err := strconv.ParseUint(val, 10, 32)
				if err != nil {
					return nil, simerr.New(simerr.ParameterFailed, "isa: ac_code line %d: dpdon: %v", lineNo+1, err)
				}
				instr.DpdOn = uint32(n)
			case "dpdby":
				n, err := strconv.ParseUint(val, 10, 32)
				if err != nil {
					return nil, simerr.New(simerr.ParameterFailed, "isa: ac_code line %d: dpdby: %v", lineNo+1, err)
				}
				instr.DpdBy = uint32(n)
			default:
				field := fieldByName(desc, key)
				if field == nil {
					return nil, simerr.New(simerr.ParameterFailed, "isa: ac_code line %d: %s has no field %q", lineNo+1, mnemonic, key)
				}
				if field.Kind == FieldString {
					instr.Strings[key] = val
				} else {
					n, err := strconv.ParseUint(val, 10, 32)
					if err != nil {
						return nil, simerr.New(simerr.ParameterFailed, "isa: ac_code line %d: %s: %v", lineNo+1, key, err)
					}
					instr.Fields[key] = uint32(n)
				}
			}
		}
		out = append(out, instr)
	}
	return out, nil
}

func fieldByName(desc InstDesc, name string) *Field {
	for i := range desc.Fields {
		if desc.Fields[i].Name == name {
			return &desc.Fields[i]
		}
	}
	return nil
}
