// Package target holds the immutable per-generation accelerator parameters
// (C1 in SPEC_FULL.md): channel/pixel parallelism, bank geometry, supported
// activations, and instruction-limit ranges. A Params value is loaded once
// per program and never mutated afterward.
package target

import (
	"fmt"
	"strconv"
	"strings"
)

// Generation is a closed enumeration of supported accelerator variants.
type Generation int

const (
	DPUV2 Generation = iota
	DPUV3E
	DPUV3ME
	DPUV4E
	DPU4F
	XVDPU
	XV2DPU
	XV3DPU
	generationCount
)

func (g Generation) String() string {
	names := [...]string{"DPUV2", "DPUV3E", "DPUV3ME", "DPUV4E", "DPU4F", "XVDPU", "XV2DPU", "XV3DPU"}
	if int(g) < 0 || int(g) >= len(names) {
		return fmt.Sprintf("Generation(%d)", int(g))
	}
	return names[g]
}

// BankGroupType classifies what a bank group is used for.
type BankGroupType int

const (
	GroupIFM BankGroupType = iota
	GroupParam
	GroupSpecial
	GroupVirtual
)

// BankGroup describes one contiguous run of banks sharing geometry and role.
type BankGroup struct {
	Name       string
	Type       BankGroupType
	BaseBankID int
	BankNum    int
	BankWidth  int
	BankDepth  int
}

// ActivationKind enumerates the non-linearities the simulator can apply.
type ActivationKind int

const (
	ActNone ActivationKind = iota
	ActRelu
	ActLeaky
	ActRelu6
	ActPRelu
	ActHSigmoid
	ActHSwish
)

// RangeSet is a set of legal integer values, e.g. parsed from "1-16,32".
type RangeSet map[int]bool

// Contains reports whether v is a member of the set.
func (r RangeSet) Contains(v int) bool { return r[v] }

// ParseRangeString parses a comma-separated list of integers and
// inclusive "lo-hi" ranges into a RangeSet, per SPEC_FULL.md §4.1.
func ParseRangeString(s string) (RangeSet, error) {
	out := RangeSet{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(tok, "-"); ok {
			loN, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("target: bad range token %q: %w", tok, err)
			}
			hiN, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("target: bad range token %q: %w", tok, err)
			}
			if loN > hiN {
				return nil, fmt.Errorf("target: bad range token %q: lo > hi", tok)
			}
			for v := loN; v <= hiN; v++ {
				out[v] = true
			}
			continue
		}
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("target: bad range token %q: %w", tok, err)
		}
		out[v] = true
	}
	return out, nil
}

// Params is the immutable parameter set for one accelerator generation.
type Params struct {
	Generation    Generation
	ProcessorType string
	HPWidth       int // bytes
	BankGroups    []BankGroup

	ICP, OCP int // input/output channel parallelism (non-AIE generations)
	AIEICP   int // AIE-mode input channel parallelism (DPUV4E)
	AIEOCP   int

	EngineBankGroups     map[string][]string // access type -> bank group names
	InstrLimits          map[string]string   // engine -> raw range string
	instrLimits          map[string]RangeSet
	SupportedActivations map[ActivationKind]bool

	TileEnabled bool // generation supports the scale-2 tile-reorder post-pass
}

// Finalize parses InstrLimits into ready-to-query RangeSets. Must be called
// once after constructing or loading a Params value, before use.
func (p *Params) Finalize() error {
	p.instrLimits = make(map[string]RangeSet, len(p.InstrLimits))
	for engine, raw := range p.InstrLimits {
		rs, err := ParseRangeString(raw)
		if err != nil {
			return fmt.Errorf("target: engine %q: %w", engine, err)
		}
		p.instrLimits[engine] = rs
	}
	return nil
}

// BankAccessWhitelist returns the set of bank ids legal for the given
// access type (e.g. "conv-in", "conv-out", "load-out", "save-in").
func (p *Params) BankAccessWhitelist(accessType string) map[int]bool {
	out := map[int]bool{}
	for _, groupName := range p.EngineBankGroups[accessType] {
		for _, g := range p.BankGroups {
			if g.Name != groupName {
				continue
			}
			for i := 0; i < g.BankNum; i++ {
				out[g.BaseBankID+i] = true
			}
		}
	}
	return out
}

// InstrLimitWhitelist returns the legal kernel/stride size set for an engine.
func (p *Params) InstrLimitWhitelist(limitType string) RangeSet {
	if p.instrLimits == nil {
		return RangeSet{}
	}
	return p.instrLimits[limitType]
}

// SupportsActivation reports whether this generation implements the given
// non-linearity.
func (p *Params) SupportsActivation(k ActivationKind) bool {
	return p.SupportedActivations[k]
}

// BankGroupByName finds a bank group by name, or nil.
func (p *Params) BankGroupByName(name string) *BankGroup {
	for i := range p.BankGroups {
		if p.BankGroups[i].Name == name {
			return &p.BankGroups[i]
		}
	}
	return nil
}
