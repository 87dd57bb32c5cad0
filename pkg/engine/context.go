package engine

import (
	"github.com/oisee/dpusim/internal/simcfg"
	"github.com/oisee/dpusim/internal/trace"
	"github.com/oisee/dpusim/pkg/bank"
	"github.com/oisee/dpusim/pkg/ddr"
	"github.com/oisee/dpusim/pkg/isa"
	"github.com/oisee/dpusim/pkg/target"
)

// Context is the SimulationContext threaded explicitly through every
// handler (spec.md §9 "Process-wide state" redesign note): it replaces
// the reference tool's DDR/bank/target/ISA-table singletons with values
// owned by the top-level runner, making per-test isolation trivial.
type Context struct {
	Target *target.Params
	DDR    *ddr.Store
	Banks  *bank.Store
	Table  isa.Table
	Cfg    *simcfg.Config
	Trace  *trace.EventLog

	ConvInit      *ConvInitState
	ConvRemaining int
	ConvAddrPlan  []AddrEntry

	AluInit     *AluInitState
	AluAddrPlan []AddrEntry

	PoolInit *PoolInitState
	DWInit   *DWInitState
	ElewInit *ElewInitState

	InstrIndex int
}

// NewContext builds a Context ready to run a program against one target.
func NewContext(t *target.Params, d *ddr.Store, b *bank.Store, tbl isa.Table, cfg *simcfg.Config) *Context {
	return &Context{
		Target: t, DDR: d, Banks: b, Table: tbl, Cfg: cfg,
		Trace: trace.NewEventLog(),
	}
}
