package engine

import (
	"context"

	"github.com/dbup-tool/dbup/internal/errors"
	"github.com/dbup-tool/dbup/internal/journal"
	"github.com/dbup-tool/dbup/internal/plan"
	"github.com/dbup-tool/dbup/internal/scripts"
	"github.com/dbup-tool/dbup/internal/variables"
)

// Preview is what a run would do, computed without executing anything.
type Preview struct {
	Outstanding []scripts.Script
	Applied     []scripts.Script
	Journal     []journal.Entry
}

// Preview runs Planning, Discovering and Filtering only and changes nothing
// in the database. When the journal table is missing every script is
// outstanding.
func (e *Engine) Preview(ctx context.Context, p plan.Plan) (*Preview, error) {
	r := e.begin(p)
	if err := r.planning(); err != nil {
		return nil, err
	}
	r.enter(Discovering)
	found, err := r.discovering()
	if err != nil {
		return nil, err
	}
	r.enter(Filtering)
	f, err := r.filtering(ctx, found, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.conn.Close() }()

	preview := &Preview{Outstanding: f.outstanding, Applied: f.applied}
	if !f.stored {
		return preview, nil
	}
	if preview.Journal, err = f.journal.Entries(ctx); err != nil {
		return nil, errors.Mark(err, errors.ErrConnection)
	}
	return preview, nil
}

// Prepared is a discovered script with its body loaded and expanded.
type Prepared struct {
	Script   scripts.Script
	Content  string
	Expanded string
	Err      error
}

// Prepare discovers every script of p and expands its variables without
// contacting the database. Per-script problems are returned in Prepared.Err;
// the error is reserved for failures that stop discovery itself.
func (e *Engine) Prepare(p plan.Plan) ([]Prepared, error) {
	r := e.begin(p)
	if err := r.planning(); err != nil {
		return nil, err
	}
	r.enter(Discovering)
	found, err := r.discovering()
	if err != nil {
		return nil, err
	}

	out := make([]Prepared, 0, len(found))
	for _, s := range found {
		prepared := Prepared{Script: s}
		prepared.Content, prepared.Err = s.Load()
		if prepared.Err == nil {
			prepared.Expanded, prepared.Err = variables.Expand(prepared.Content, r.vars, p.VariablesEnabled)
		}
		if prepared.Err != nil {
			prepared.Err = errors.Script(s.Identity, kindOf(prepared.Err), prepared.Err)
		}
		out = append(out, prepared)
	}
	return out, nil
}

func kindOf(err error) error {
	if errors.Is(err, errors.ErrUnresolvedVariable) {
		return errors.ErrUnresolvedVariable
	}
	return errors.ErrSourceUnreadable
}
