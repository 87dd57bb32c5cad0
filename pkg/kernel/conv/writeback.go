package conv

import (
	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/engine"
)

// WriteBack writes the (possibly tile-reordered) output tile to the OFM
// bank, one line per (idx_h, idx_w) spatial position, rejecting any bank
// id outside the conv-out whitelist. Per spec.md §4.7 "Write-back":
// bank_addr = (mt_addr_out_[idx_h] + idx_w*jump_write) mod bank_depth,
// where mt_addr_out_ is the CONVADDR OFM plan expanded by h_num/invalid
// (buildAddrList) and falls back to a flat idx_h*w raster base when the
// conv carries no OFM plan at all.
func WriteBack(ctx *engine.Context, data [][][]int8, h, w, oc int) error {
	bankID := int(ctx.ConvInit.BankIDOut)
	wl := ctx.Target.BankAccessWhitelist("conv-out")
	if !wl[bankID] {
		return simerr.New(simerr.WhitelistViolate, "conv: output bank %d not in conv-out whitelist", bankID)
	}
	bank, err := ctx.Banks.Bank(bankID)
	if err != nil {
		return err
	}
	mtAddrOut := buildAddrList(ctx.ConvAddrPlan, AddrOFM)
	jumpWrite := jumpFor(ctx.ConvAddrPlan, AddrOFM)
	for i := 0; i < h; i++ {
		var rowBase int
		if len(mtAddrOut) == 0 {
			rowBase = i * w
		} else {
			idx := i
			if idx >= len(mtAddrOut) {
				idx = len(mtAddrOut) - 1
			}
			rowBase = mtAddrOut[idx]
		}
		for j := 0; j < w; j++ {
			addr := rowBase
			if len(mtAddrOut) != 0 {
				addr = (rowBase + j*jumpWrite) % bank.Height
			} else {
				addr += j
			}
			buf := make([]byte, oc)
			for k, v := range data[i][j] {
				buf[k] = byte(v)
			}
			if err := ctx.Banks.Write(bankID, addr, 0, oc, buf); err != nil {
				return err
			}
		}
	}
	return nil
}
