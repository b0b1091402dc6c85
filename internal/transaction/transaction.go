// Package transaction decides how transactions wrap script execution.
package transaction

import (
	"context"

	"github.com/dbup-tool/dbup/internal/database"
	"github.com/dbup-tool/dbup/internal/errors"
	"github.com/dbup-tool/dbup/internal/plan"
)

// Strategy wraps units of work (one script plus its journal write) in the
// transaction scope of a plan's TransactionMode.
//
// The engine calls Start once before the first unit, Wrap per unit, then
// Finish after the last success or Abort after a failure.
type Strategy interface {
	Start(ctx context.Context) error
	Wrap(ctx context.Context, unit func(context.Context) error) error
	Finish(ctx context.Context) error
	Abort() error
}

var strategies = map[plan.TransactionMode]func(database.Connection) Strategy{
	plan.TransactionSingle:    func(c database.Connection) Strategy { return &single{conn: c} },
	plan.TransactionPerScript: func(c database.Connection) Strategy { return &perScript{conn: c} },
	plan.TransactionNone:      func(database.Connection) Strategy { return none{} },
}

// New returns the strategy for mode over conn.
func New(mode plan.TransactionMode, conn database.Connection) (Strategy, error) {
	ctor, ok := strategies[mode]
	if !ok {
		return nil, errors.Mark(errors.Newf("unknown transaction mode %v", mode), errors.ErrInvalidPlan)
	}
	return ctor(conn), nil
}

// single runs every unit in one transaction.
type single struct {
	conn database.Connection
}

func (s *single) Start(ctx context.Context) error {
	return s.conn.BeginTransaction(ctx)
}

func (s *single) Wrap(ctx context.Context, unit func(context.Context) error) error {
	return unit(ctx)
}

func (s *single) Finish(context.Context) error {
	return s.conn.Commit()
}

func (s *single) Abort() error {
	return s.conn.Rollback()
}

// perScript commits each unit on its own.
type perScript struct {
	conn database.Connection
}

func (p *perScript) Start(context.Context) error { return nil }

func (p *perScript) Wrap(ctx context.Context, unit func(context.Context) error) error {
	if err := p.conn.BeginTransaction(ctx); err != nil {
		return err
	}
	if err := unit(ctx); err != nil {
		if rbErr := p.conn.Rollback(); rbErr != nil {
			return errors.WithDetailf(err, "rollback also failed: %v", rbErr)
		}
		return err
	}
	return p.conn.Commit()
}

func (p *perScript) Finish(context.Context) error { return nil }

func (p *perScript) Abort() error {
	return p.conn.Rollback()
}

// none leaves every statement to the connection's autocommit.
type none struct{}

func (none) Start(context.Context) error { return nil }

func (none) Wrap(ctx context.Context, unit func(context.Context) error) error {
	return unit(ctx)
}

func (none) Finish(context.Context) error { return nil }

func (none) Abort() error { return nil }
