package session

import (
	"context"
	"sync"
	"time"

	"tender-admin/internal/observability"
)

// Outcome is what a guarded request should do.
type Outcome int

const (
	OutcomeRender Outcome = iota
	OutcomeLoading
	OutcomeRedirect
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRender:
		return "render"
	case OutcomeLoading:
		return "loading"
	default:
		return "redirect"
	}
}

// Decision is the guard's verdict for one request.
type Decision struct {
	Outcome Outcome
	State   State
	Reason  Reason
}

// Guard gates protected content for one client. Validation and rehydration
// run once per guard until Retrigger is called or the recheck interval
// elapses; later evaluations only read the machine state.
type Guard struct {
	machine   *Machine
	validator *Validator
	clock     Clock
	recheck   time.Duration

	mu        sync.Mutex
	checked   bool
	checkedAt time.Time
}

// NewGuard creates a guard. A zero recheck interval disables periodic
// revalidation.
func NewGuard(machine *Machine, validator *Validator, clock Clock, recheck time.Duration) *Guard {
	if clock == nil {
		clock = SystemClock()
	}
	return &Guard{
		machine:   machine,
		validator: validator,
		clock:     clock,
		recheck:   recheck,
	}
}

// Evaluate decides whether protected content may render. Evaluations for the
// same guard are serialized, and rehydration completes before the decision is
// made, so content is never rendered while rehydration is in flight.
func (g *Guard) Evaluate(ctx context.Context) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if g.checked && g.recheck > 0 && now.Sub(g.checkedAt) >= g.recheck {
		g.checked = false
	}

	reason := ReasonOK
	if !g.checked {
		res := g.validator.Check(ctx)
		g.checked = true
		g.checkedAt = now
		if !res.Valid {
			g.machine.Invalidate(ctx, string(res.Reason))
			return g.decide(Decision{Outcome: OutcomeRedirect, State: g.machine.State(), Reason: res.Reason})
		}
		g.machine.Rehydrate(ctx)
	}

	st := g.machine.State()
	if st.IsLoading {
		return g.decide(Decision{Outcome: OutcomeLoading, State: st, Reason: reason})
	}
	if !st.HasValidSession() {
		if st.IsAuthenticated || st.User != nil {
			g.machine.Invalidate(ctx, "incomplete_session")
			st = g.machine.State()
		} else {
			g.machine.discardRemnants(ctx)
		}
		return g.decide(Decision{Outcome: OutcomeRedirect, State: st, Reason: ReasonMissing})
	}
	return g.decide(Decision{Outcome: OutcomeRender, State: st, Reason: reason})
}

func (g *Guard) decide(d Decision) Decision {
	observability.GuardDecisionsTotal.WithLabelValues(d.Outcome.String()).Inc()
	return d
}

// Retrigger makes the next Evaluate validate and rehydrate again.
func (g *Guard) Retrigger() {
	g.mu.Lock()
	g.checked = false
	g.mu.Unlock()
}

// Checked reports whether the guard has completed its initial check.
func (g *Guard) Checked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checked
}
