package target

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/oisee/dpusim/internal/simerr"
)

// descriptorJSON is the Go-native stand-in for the "protobuf or equivalent"
// hardware descriptor of SPEC_FULL.md's target module: protobuf parsing
// itself is out of scope (spec.md §1 Non-goals name it as an external
// collaborator), but the simulator still needs a way to load a target by
// fingerprint that isn't baked into the binary.
type descriptorJSON struct {
	Fingerprint uint64 `json:"fingerprint"`
	Params      Params `json:"params"`
}

// Load reads a JSON descriptor file and returns the Params entry matching
// fingerprint. If r is nil, Load returns a ParameterFailed error; it never
// consults the Builtin table (ByName resolves built-in targets by name).
func Load(fingerprint uint64, r io.Reader) (*Params, error) {
	if r == nil {
		return nil, simerr.New(simerr.ParameterFailed, "target: no descriptor source for fingerprint %d", fingerprint)
	}
	var descs []descriptorJSON
	if err := json.NewDecoder(r).Decode(&descs); err != nil {
		return nil, simerr.Wrap(simerr.FileOpenFailed, err, "target: decode descriptor")
	}
	for i := range descs {
		if descs[i].Fingerprint == fingerprint {
			p := descs[i].Params
			if err := p.Finalize(); err != nil {
				return nil, err
			}
			return &p, nil
		}
	}
	return nil, simerr.New(simerr.ParameterFailed, "target: no descriptor for fingerprint %d", fingerprint)
}

// ByName resolves a Generation by its string name, for CLI flags and the
// built-in fallback table.
func ByName(name string) (*Params, error) {
	for gen := Generation(0); gen < generationCount; gen++ {
		if gen.String() == name {
			if p, ok := Builtin[gen]; ok {
				return p, nil
			}
			return nil, fmt.Errorf("target: generation %s has no built-in descriptor", name)
		}
	}
	return nil, fmt.Errorf("target: unknown generation %q", name)
}
