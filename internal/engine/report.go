package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dbup-tool/dbup/internal/plan"
)

// State is a step of the migration state machine.
type State int

const (
	Planning State = iota
	Discovering
	Filtering
	Executing
	Completed
	Failed
)

var stateNames = [...]string{"Planning", "Discovering", "Filtering", "Executing", "Completed", "Failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome is what happened to one script during a run.
type Outcome int

const (
	Applied Outcome = iota
	Skipped
	FailedOutcome
	// RolledBack marks a script that executed but whose effects were undone
	// when the single run-wide transaction rolled back.
	RolledBack
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "Applied"
	case Skipped:
		return "Skipped"
	case FailedOutcome:
		return "Failed"
	case RolledBack:
		return "RolledBack"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result is the execution result of one script.
type Result struct {
	Identity string
	Kind     plan.ScriptKind
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Report summarises a run.
type Report struct {
	RunID        uuid.UUID
	State        State
	Results      []Result
	Applied      int
	Skipped      int
	FailedScript string
	Err          error
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case Applied:
		r.Applied++
	case Skipped:
		r.Skipped++
	case FailedOutcome:
		r.FailedScript = res.Identity
	}
}

// rollBackApplied turns every Applied result into RolledBack.
func (r *Report) rollBackApplied() {
	for i := range r.Results {
		if r.Results[i].Outcome == Applied {
			r.Results[i].Outcome = RolledBack
			r.Applied--
		}
	}
}

// Succeeded lists the identities applied by the run, in order.
func (r *Report) Succeeded() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Outcome == Applied {
			ids = append(ids, res.Identity)
		}
	}
	return ids
}
