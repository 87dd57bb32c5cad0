// Package bank models the on-chip scratchpad (C3 in SPEC_FULL.md): a set
// of 2-D banks (height x width bytes) keyed by numeric bank id, with
// per-bank read/write and wrap-around on bank depth. Bank groups express
// semantic roles (IFM, Param, Special, Virtual); this package only stores
// bytes — role and whitelist enforcement live in pkg/target and pkg/engine.
package bank

import (
	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/target"
)

// Bank is a contiguous 2-D byte matrix: Height lines of Width bytes each.
type Bank struct {
	ID     int
	Height int
	Width  int
	Lines  [][]byte
}

func newBank(id, height, width int) *Bank {
	lines := make([][]byte, height)
	for i := range lines {
		lines[i] = make([]byte, width)
	}
	return &Bank{ID: id, Height: height, Width: width, Lines: lines}
}

// Store is the full bank-addressed scratchpad for one program run.
type Store struct {
	banks   map[int]*Bank
	byGroup map[string][]*Bank
	nibble  bool // DPU4F 4-bit packing shim
}

// NewStore builds a Store from a target's bank-group list.
func NewStore(p *target.Params, nibble bool) *Store {
	s := &Store{banks: map[int]*Bank{}, byGroup: map[string][]*Bank{}, nibble: nibble}
	for _, g := range p.BankGroups {
		for i := 0; i < g.BankNum; i++ {
			id := g.BaseBankID + i
			b := newBank(id, g.BankDepth, g.BankWidth)
			s.banks[id] = b
			s.byGroup[g.Name] = append(s.byGroup[g.Name], b)
		}
	}
	return s
}

// Bank looks up a bank by its global id.
func (s *Store) Bank(id int) (*Bank, error) {
	b, ok := s.banks[id]
	if !ok {
		return nil, simerr.New(simerr.OutOfRange, "bank: id %d not allocated", id)
	}
	return b, nil
}

// Group returns the ordered banks of a named group.
func (s *Store) Group(name string) []*Bank {
	return s.byGroup[name]
}

// Read copies n contiguous bytes starting at (addr, offset) into dst,
// wrapping addr modulo the bank's height. In nibble mode (DPU4F), offset
// and n instead index 4-bit values packed two-per-byte; each is
// sign-extended into a full dst byte (spec.md §4.3).
func (s *Store) Read(bankID, addr, offset, n int, dst []byte) error {
	b, err := s.Bank(bankID)
	if err != nil {
		return err
	}
	if s.nibble {
		return s.readNibbles(b, addr, offset, n, dst)
	}
	if offset < 0 || offset+n > b.Width {
		return simerr.New(simerr.OutOfRange, "bank: read bank %d offset %d len %d exceeds width %d", bankID, offset, n, b.Width)
	}
	line := ((addr % b.Height) + b.Height) % b.Height
	copy(dst[:n], b.Lines[line][offset:offset+n])
	return nil
}

// Write copies n contiguous bytes from src into (addr, offset), wrapping
// addr modulo the bank's height. In nibble mode (DPU4F), offset and n
// instead index 4-bit values packed two-per-byte; only the low 4 bits of
// each src byte are stored (spec.md §4.3).
func (s *Store) Write(bankID, addr, offset, n int, src []byte) error {
	b, err := s.Bank(bankID)
	if err != nil {
		return err
	}
	if s.nibble {
		return s.writeNibbles(b, addr, offset, n, src)
	}
	if offset < 0 || offset+n > b.Width {
		return simerr.New(simerr.OutOfRange, "bank: write bank %d offset %d len %d exceeds width %d", bankID, offset, n, b.Width)
	}
	line := ((addr % b.Height) + b.Height) % b.Height
	copy(b.Lines[line][offset:offset+n], src[:n])
	return nil
}

// readNibbles unpacks n signed 4-bit values starting at nibble index
// offset (two values per stored byte, low nibble first), sign-extending
// each into a full dst byte so callers can keep treating it as int8
// (spec.md §4.3: "unpacks + sign-extends on read").
func (s *Store) readNibbles(b *Bank, addr, offset, n int, dst []byte) error {
	if offset < 0 || offset+n > b.Width*2 {
		return simerr.New(simerr.OutOfRange, "bank: nibble read bank %d offset %d len %d exceeds width %d", b.ID, offset, n, b.Width*2)
	}
	line := ((addr % b.Height) + b.Height) % b.Height
	row := b.Lines[line]
	for i := 0; i < n; i++ {
		idx := offset + i
		packed := row[idx/2]
		var nib byte
		if idx%2 == 0 {
			nib = packed & 0x0f
		} else {
			nib = packed >> 4
		}
		dst[i] = signExtendNibble(nib)
	}
	return nil
}

// writeNibbles packs n signed 4-bit values (the low 4 bits of each src
// byte) two per stored byte, leaving the other nibble of each touched
// byte untouched (spec.md §4.3: "packs two 4-bit values into one stored
// byte on write").
func (s *Store) writeNibbles(b *Bank, addr, offset, n int, src []byte) error {
	if offset < 0 || offset+n > b.Width*2 {
		return simerr.New(simerr.OutOfRange, "bank: nibble write bank %d offset %d len %d exceeds width %d", b.ID, offset, n, b.Width*2)
	}
	line := ((addr % b.Height) + b.Height) % b.Height
	row := b.Lines[line]
	for i := 0; i < n; i++ {
		idx := offset + i
		nib := src[i] & 0x0f
		byteIdx := idx / 2
		if idx%2 == 0 {
			row[byteIdx] = (row[byteIdx] & 0xf0) | nib
		} else {
			row[byteIdx] = (row[byteIdx] & 0x0f) | (nib << 4)
		}
	}
	return nil
}

// signExtendNibble widens a 4-bit two's-complement value to a full byte.
func signExtendNibble(nib byte) byte {
	if nib&0x8 != 0 {
		return nib | 0xf0
	}
	return nib
}

// ReadLine returns the full line at addr (wrapped), as a read-only view.
func (s *Store) ReadLine(bankID, addr int) ([]byte, error) {
	b, err := s.Bank(bankID)
	if err != nil {
		return nil, err
	}
	line := ((addr % b.Height) + b.Height) % b.Height
	return b.Lines[line], nil
}
