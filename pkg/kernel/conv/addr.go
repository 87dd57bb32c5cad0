package conv

import "github.com/oisee/dpusim/pkg/engine"

// Address-plan entry types (spec.md §4.7 "Address planning"). The ISA
// only carries the raw addr_type value; this package is where it's given
// meaning.
const (
	AddrIFM = iota
	AddrWGT
	AddrBias
	AddrOFM
	AddrIFMElew
)

// buildAddrList expands a CONVADDR plan's entries of the given kind into
// a flat, per-row bank-address list: each entry contributes h_num
// consecutive rows at bank_addr+i*jump_endl, and an invalid=1 entry
// contributes none, signaling that the rows it would have covered are
// skipped (spec.md §4.7 "Address planning"; grounded on
// original_source/sim-runner/src/inst/Conv.cpp's gen_mt_addr lambda).
func buildAddrList(plan []engine.AddrEntry, kind uint32) []int {
	var out []int
	for _, e := range plan {
		if e.Type != kind || e.Invalid {
			continue
		}
		hNum := int(e.HNum)
		if hNum <= 0 {
			hNum = 1
		}
		for i := 0; i < hNum; i++ {
			out = append(out, int(e.BankAddr)+i*int(e.JumpEndl))
		}
	}
	return out
}

// jumpFor returns the plan's last jump value for the given addr_type kind
// (Conv.cpp's gen_mt_addr assigns jump_write_/jump_read_ from whichever
// entry of that kind was last consumed), or 0 when the plan carries none.
func jumpFor(plan []engine.AddrEntry, kind uint32) int {
	jump := 0
	for _, e := range plan {
		if e.Type == kind {
			jump = int(e.Jump)
		}
	}
	return jump
}

// rowAddr resolves the bank address for source row idx from a CONVADDR
// plan of the given kind, falling back to a flat raster address
// (idx*stride) when no plan entries were supplied — the common case for a
// conv whose CONVINIT/CONV pair addresses its tile directly without an
// explicit per-row address list.
func rowAddr(plan []engine.AddrEntry, kind uint32, idx, stride int) int {
	addrs := buildAddrList(plan, kind)
	if len(addrs) == 0 {
		return idx * stride
	}
	if idx >= len(addrs) {
		idx = len(addrs) - 1
	}
	return addrs[idx]
}
