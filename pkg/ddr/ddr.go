// Package ddr models the external-memory "register" space (C2 in
// SPEC_FULL.md): a set of named, 4 KiB-aligned byte buffers with
// random-access read/write, initial-value seeding, and save/restore.
//
// Grounded on original_source/sim-runner/src/buffer/DDR.{hpp,cpp}.
package ddr

import (
	"math/rand/v2"

	"github.com/oisee/dpusim/internal/simerr"
)

const allocGranularity = 4096

// Reg is one named DDR region.
type Reg struct {
	ID       int
	Size     uint64 // always a multiple of 4096
	Data     []byte
	Used     bool
	usedLine map[uint64]bool
}

// Store is the DDR store: a collection of Regs, single-threaded with
// respect to the execution engine exactly as the reference tool's
// process-wide singleton was, but owned explicitly by the caller instead
// of being a package-level global (see SPEC_FULL.md's SimulationContext
// note).
type Store struct {
	hpWidth int
	regs    map[int]*Reg
}

// NewStore creates an empty store for the given HP bus width.
func NewStore(hpWidth int) *Store {
	return &Store{hpWidth: hpWidth, regs: make(map[int]*Reg)}
}

// Initial allocates a zeroed, 4 KiB-aligned buffer for every reg_id -> size
// entry, then copies in CONST tensor bytes for any reg present in consts.
func (s *Store) Initial(sizes map[int]uint64, consts map[int][]byte) error {
	for id, size := range sizes {
		alloc := ((size + allocGranularity - 1) / allocGranularity) * allocGranularity
		reg := &Reg{ID: id, Size: alloc, Data: make([]byte, alloc), usedLine: map[uint64]bool{}}
		if data, ok := consts[id]; ok {
			if uint64(len(data)) > alloc {
				return simerr.New(simerr.ParameterFailed, "ddr: const data for reg %d (%d bytes) exceeds allocation %d", id, len(data), alloc)
			}
			copy(reg.Data, data)
		}
		s.regs[id] = reg
	}
	return nil
}

// FillRandom seeds every reg without pre-existing non-zero data from a
// deterministic PRNG, for compiler fuzz testing (SPEC_FULL.md Supplemented
// Features #4).
func (s *Store) FillRandom(seed int64) {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>32|1))
	for _, reg := range s.regs {
		if hasNonZero(reg.Data) {
			continue
		}
		for i := range reg.Data {
			reg.Data[i] = byte(rng.IntN(256))
		}
	}
}

func hasNonZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return true
		}
	}
	return false
}

// GetAddr returns a slice of reg's backing array starting at offset. The
// slice aliases the store's memory; writes through it are visible to later
// reads.
func (s *Store) GetAddr(regID int, offset uint64) ([]byte, error) {
	reg, ok := s.regs[regID]
	if !ok {
		return nil, simerr.New(simerr.OutOfRange, "ddr: reg %d not allocated", regID)
	}
	if offset >= reg.Size {
		return nil, simerr.New(simerr.OutOfRange, "ddr: reg %d offset %d >= size %d", regID, offset, reg.Size)
	}
	return reg.Data[offset:], nil
}

// GetSize returns the allocated size of a reg.
func (s *Store) GetSize(regID int) (uint64, error) {
	reg, ok := s.regs[regID]
	if !ok {
		return 0, simerr.New(simerr.OutOfRange, "ddr: reg %d not allocated", regID)
	}
	return reg.Size, nil
}

// Read copies n bytes from (regID, offset) into dst.
func (s *Store) Read(regID int, offset uint64, dst []byte) error {
	reg, ok := s.regs[regID]
	if !ok {
		return simerr.New(simerr.OutOfRange, "ddr: reg %d not allocated", regID)
	}
	if offset+uint64(len(dst)) > reg.Size {
		return simerr.New(simerr.OutOfRange, "ddr: reg %d read [%d,%d) exceeds size %d", regID, offset, offset+uint64(len(dst)), reg.Size)
	}
	copy(dst, reg.Data[offset:offset+uint64(len(dst))])
	return nil
}

// Write copies src into (regID, offset) and marks the touched lines used.
func (s *Store) Write(regID int, offset uint64, src []byte) error {
	reg, ok := s.regs[regID]
	if !ok {
		return simerr.New(simerr.OutOfRange, "ddr: reg %d not allocated", regID)
	}
	if offset+uint64(len(src)) > reg.Size {
		return simerr.New(simerr.OutOfRange, "ddr: reg %d write [%d,%d) exceeds size %d", regID, offset, offset+uint64(len(src)), reg.Size)
	}
	copy(reg.Data[offset:offset+uint64(len(src))], src)
	reg.Used = true
	s.MarkUsed(regID, offset)
	return nil
}

// lineGranularity returns the coarse dump-line size: hp_width * 16.
func (s *Store) lineGranularity() uint64 {
	return uint64(s.hpWidth) * 16
}

// MarkUsed records the coarse line containing offset, for the
// dump-only-used-lines fast path (ddr_dump_end_fast).
func (s *Store) MarkUsed(regID int, offset uint64) {
	reg, ok := s.regs[regID]
	if !ok {
		return
	}
	line := offset / s.lineGranularity()
	reg.usedLine[line] = true
}

// RegIDs returns every allocated reg id, for iteration by dump routines.
func (s *Store) RegIDs() []int {
	ids := make([]int, 0, len(s.regs))
	for id := range s.regs {
		ids = append(ids, id)
	}
	return ids
}

// Reg returns the Reg for inspection (tests, dump routines).
func (s *Store) Reg(regID int) (*Reg, bool) {
	r, ok := s.regs[regID]
	return r, ok
}
