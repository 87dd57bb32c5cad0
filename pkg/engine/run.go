package engine

import (
	"github.com/oisee/dpusim/internal/dlog"
	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/isa"
)

// Handler implements one action op's kernel, reading stashed setup state
// from ctx and mutating ctx.DDR/ctx.Banks.
type Handler func(ctx *Context, instr isa.Instruction) error

// HandlerTable maps each action InstType to its kernel. Built by
// pkg/sim from the pkg/kernel/* packages and passed into Run, so engine
// itself never imports a kernel package (which would cycle back, since
// kernels import engine.Context).
type HandlerTable map[isa.InstType]Handler

// Run replays instrs in order against ctx, matching spec.md §4.5's
// five-step dispatch. A malformed program aborts immediately (spec.md
// §5 "Cancellation / timeouts: not supported").
func Run(ctx *Context, instrs []isa.Instruction, handlers HandlerTable) error {
	for i, instr := range instrs {
		ctx.InstrIndex = i
		dlog.Infof("instr %d: %s dpdon=%d dpdby=%d", i, instr.Type, instr.DpdOn, instr.DpdBy)

		switch {
		case instr.Type == isa.END:
			return nil

		case instr.Type.IsSetup():
			if err := ctx.stash(instr); err != nil {
				return simerr.Wrap(simerr.Internal, err, "engine: instruction %d (%s)", i, instr.Type)
			}

		case instr.Type.IsAction():
			if instr.Type == isa.CONV && ctx.ConvRemaining <= 0 {
				return simerr.New(simerr.ParameterFailed, "engine: instruction %d: CONV with conv-remaining counter at 0", i)
			}
			h, ok := handlers[instr.Type]
			if !ok {
				return simerr.New(simerr.Internal, "engine: instruction %d: no handler registered for %s", i, instr.Type)
			}
			if err := h(ctx, instr); err != nil {
				return simerr.Wrap(simerr.Internal, err, "engine: instruction %d (%s)", i, instr.Type)
			}
			ctx.afterAction(instr.Type)

		default:
			return simerr.New(simerr.UnknownOpcode, "engine: instruction %d: unrecognized instruction type %v", i, instr.Type)
		}
	}
	return simerr.New(simerr.ParameterFailed, "engine: program ended without an END instruction")
}

// stash implements spec.md §4.5 step 2: setup ops update shared state,
// CONVADDR/ALUADDR append to the pending address plan.
func (ctx *Context) stash(instr isa.Instruction) error {
	switch instr.Type {
	case isa.CONVINIT:
		if ctx.ConvRemaining != 0 {
			return simerr.New(simerr.ParameterFailed, "CONVINIT issued while conv-remaining counter is %d, want 0", ctx.ConvRemaining)
		}
		ctx.ConvInit = newConvInitState(instr)
		ctx.ConvRemaining = int(ctx.ConvInit.ConvNum)
		ctx.ConvAddrPlan = nil
	case isa.CONVADDR:
		if ctx.ConvInit == nil {
			return simerr.New(simerr.ParameterFailed, "CONVADDR issued before any CONVINIT")
		}
		entry := newAddrEntry(instr)
		if entry.Type > 4 {
			return simerr.New(simerr.ParameterFailed, "CONVADDR invalid addr_type %d", entry.Type)
		}
		ctx.ConvAddrPlan = append(ctx.ConvAddrPlan, entry)
	case isa.ALUINIT:
		ctx.AluInit = newAluInitState(instr)
		ctx.AluAddrPlan = nil
	case isa.ALUADDR:
		if ctx.AluInit == nil {
			return simerr.New(simerr.ParameterFailed, "ALUADDR issued before any ALUINIT")
		}
		ctx.AluAddrPlan = append(ctx.AluAddrPlan, newAddrEntry(instr))
	case isa.POOLINIT:
		ctx.PoolInit = newPoolInitState(instr)
	case isa.DWINIT:
		ctx.DWInit = newDWInitState(instr)
	case isa.ELEWINIT:
		ctx.ElewInit = newElewInitState(instr)
	default:
		return simerr.New(simerr.Internal, "engine: %v is not a setup op", instr.Type)
	}
	return nil
}

// afterAction implements spec.md §4.5 step 3's "then clear the pending
// address plan", plus the CONV-specific counter decrement.
func (ctx *Context) afterAction(t isa.InstType) {
	switch t {
	case isa.CONV:
		ctx.ConvRemaining--
		ctx.ConvAddrPlan = nil
	case isa.ALU:
		ctx.AluAddrPlan = nil
	}
}
