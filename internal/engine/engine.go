// Package engine runs an execution plan against a database: discover the
// scripts, drop the ones the journal already holds, and apply the rest in
// order under the plan's transaction mode.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dbup-tool/dbup/internal/database"
	"github.com/dbup-tool/dbup/internal/errors"
	"github.com/dbup-tool/dbup/internal/journal"
	"github.com/dbup-tool/dbup/internal/plan"
	"github.com/dbup-tool/dbup/internal/provider"
	"github.com/dbup-tool/dbup/internal/scripts"
	"github.com/dbup-tool/dbup/internal/sink"
	"github.com/dbup-tool/dbup/internal/transaction"
	"github.com/dbup-tool/dbup/internal/variables"
)

// Engine executes plans. It holds no per-run state and may run several
// plans in sequence.
type Engine struct {
	fs      afero.Fs
	gateway database.Gateway
	sink    sink.Sink
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithGateway overrides the provider's gateway.
func WithGateway(g database.Gateway) Option {
	return func(e *Engine) { e.gateway = g }
}

// WithSink sets where progress is reported. Defaults to sink.Null.
func WithSink(s sink.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock replaces time.Now for journal timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine reading scripts from fsys.
func New(fsys afero.Fs, opts ...Option) *Engine {
	e := &Engine{
		fs:     fsys,
		sink:   sink.Null{},
		logger: zap.NewNop().Sugar(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run carries the state of one invocation.
type run struct {
	*Engine
	plan    plan.Plan
	gateway database.Gateway
	vars    map[string]string
	report  *Report
	log     *zap.SugaredLogger
}

func (e *Engine) begin(p plan.Plan) *run {
	id := uuid.New()
	return &run{
		Engine: e,
		plan:   p,
		report: &Report{RunID: id, State: Planning},
		log:    e.logger.With("run_id", id.String()),
	}
}

func (r *run) enter(s State) {
	r.log.Debugw("state", "from", r.report.State.String(), "to", s.String())
	r.report.State = s
}

// fail moves the run to Failed and reports err through the sink.
func (r *run) fail(err error) (*Report, error) {
	r.enter(Failed)
	r.report.Err = err
	identity, _ := errors.ScriptIdentity(err)
	if r.report.FailedScript == "" {
		r.report.FailedScript = identity
	}
	r.sink.OnScriptFailure(identity, err)
	r.log.Errorw("run failed", "kind", errors.Kind(err), "script", identity, "error", err)
	return r.report, err
}

// planning validates what Build cannot guarantee for a zero Plan and
// resolves the gateway and the merged variable table.
func (r *run) planning() error {
	p := r.plan
	var problems []string
	if len(p.Sources()) == 0 {
		problems = append(problems, "no script sources")
	}
	if strings.TrimSpace(p.ConnectionString) == "" {
		problems = append(problems, "no connection string")
	}
	if len(problems) > 0 {
		return errors.Mark(errors.Newf("invalid plan: %s", strings.Join(problems, "; ")), errors.ErrInvalidPlan)
	}

	r.gateway = r.Engine.gateway
	if r.gateway == nil {
		g, err := provider.Gateway(p.Provider, r.logger)
		if err != nil {
			return err
		}
		r.gateway = g
	}

	builtins, err := r.gateway.BuiltinVariables(p.ConnectionString)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to read the connection string"), errors.ErrInvalidPlan)
	}
	r.vars = variables.Merge(p.Variables(), builtins)
	r.log.Debugw("plan ready",
		"provider", p.Provider,
		"transaction", p.Transaction.String(),
		"variables_enabled", p.VariablesEnabled,
		"variables", variables.Redact(r.vars),
	)
	return nil
}

func (r *run) discovering() ([]scripts.Script, error) {
	found, err := scripts.DiscoverAll(r.fs, r.plan)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrDiscovery)
	}
	r.log.Debugw("discovered scripts", "count", len(found))
	return found, nil
}

// filtered is the outcome of Filtering. stored is false when the journal
// table does not exist yet.
type filtered struct {
	conn        database.Connection
	journal     journal.Journal
	outstanding []scripts.Script
	applied     []scripts.Script
	stored      bool
}

// filtering connects and splits found into scripts to execute and RunOnce
// scripts already applied. With create set the journal table is created when
// missing; otherwise a missing table leaves every script outstanding.
func (r *run) filtering(ctx context.Context, found []scripts.Script, create bool) (*filtered, error) {
	conn, err := r.gateway.Connect(ctx, r.plan.ConnectionString, r.plan.ConnectTimeout)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrConnection)
	}

	j, err := journal.New(conn, r.plan.Provider, r.gateway.Dialect(), r.plan.Journal, r.log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	f := &filtered{conn: conn, journal: j, stored: true}
	if create {
		err = j.EnsureStoreExists(ctx)
	} else if f.stored, err = j.StoreExists(ctx); err != nil {
		err = errors.Mark(err, errors.ErrConnection)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	for _, s := range found {
		if s.Kind == plan.RunAlways || !f.stored {
			f.outstanding = append(f.outstanding, s)
			continue
		}
		done, err := j.HasBeenApplied(ctx, s.Identity)
		if err != nil {
			_ = conn.Close()
			return nil, errors.Script(s.Identity, errors.ErrConnection, err)
		}
		if done {
			f.applied = append(f.applied, s)
		} else {
			f.outstanding = append(f.outstanding, s)
		}
	}
	r.log.Debugw("filtered scripts", "outstanding", len(f.outstanding), "already_applied", len(f.applied), "journal_exists", f.stored)
	return f, nil
}

// Run executes p and returns the run report. The error, when not nil, is
// also stored in the report and carries the failure kind and the failing
// script identity. Cancelling ctx stops the run before the next script; a
// script already running is never interrupted.
func (e *Engine) Run(ctx context.Context, p plan.Plan) (*Report, error) {
	r := e.begin(p)
	r.log.Infow("run started", "provider", p.Provider, "transaction", p.Transaction.String())

	if err := r.planning(); err != nil {
		return r.fail(err)
	}

	r.enter(Discovering)
	found, err := r.discovering()
	if err != nil {
		return r.fail(err)
	}

	r.enter(Filtering)
	f, err := r.filtering(ctx, found, true)
	if err != nil {
		return r.fail(err)
	}
	defer func() { _ = f.conn.Close() }()

	for _, s := range f.applied {
		r.report.add(Result{Identity: s.Identity, Kind: s.Kind, Outcome: Skipped})
	}

	r.enter(Executing)
	if err := r.executing(ctx, f.conn, f.journal, f.outstanding); err != nil {
		return r.fail(err)
	}

	r.enter(Completed)
	r.sink.OnRunComplete(r.report.Applied, r.report.Skipped)
	r.log.Infow("run completed", "applied", r.report.Applied, "skipped", r.report.Skipped)
	return r.report, nil
}

func (r *run) executing(ctx context.Context, conn database.Connection, j journal.Journal, outstanding []scripts.Script) error {
	strategy, err := transaction.New(r.plan.Transaction, conn)
	if err != nil {
		return err
	}
	if err := strategy.Start(ctx); err != nil {
		return errors.Mark(err, errors.ErrConnection)
	}

	abort := func(err error) error {
		if rbErr := strategy.Abort(); rbErr != nil {
			err = errors.WithDetailf(err, "rollback failed: %v", rbErr)
		}
		if r.plan.Transaction == plan.TransactionSingle {
			r.report.rollBackApplied()
		}
		return err
	}

	for _, s := range outstanding {
		if err := ctx.Err(); err != nil {
			return abort(errors.Wrap(err, "run cancelled"))
		}

		content, err := s.Load()
		if err != nil {
			r.report.add(Result{Identity: s.Identity, Kind: s.Kind, Outcome: FailedOutcome, Err: err})
			return abort(errors.Script(s.Identity, errors.ErrSourceUnreadable, err))
		}
		expanded, err := variables.Expand(content, r.vars, r.plan.VariablesEnabled)
		if err != nil {
			r.report.add(Result{Identity: s.Identity, Kind: s.Kind, Outcome: FailedOutcome, Err: err})
			return abort(errors.Script(s.Identity, errors.ErrUnresolvedVariable, err))
		}

		r.sink.OnScriptStart(s.Identity)
		start := r.now()
		err = strategy.Wrap(ctx, func(ctx context.Context) error {
			return r.apply(ctx, conn, j, s, content, expanded)
		})
		elapsed := r.now().Sub(start)
		if err != nil {
			if _, ok := errors.ScriptIdentity(err); !ok {
				err = errors.Script(s.Identity, errors.ErrExecution, err)
			}
			r.report.add(Result{Identity: s.Identity, Kind: s.Kind, Outcome: FailedOutcome, Err: err, Duration: elapsed})
			return abort(err)
		}

		r.report.add(Result{Identity: s.Identity, Kind: s.Kind, Outcome: Applied, Duration: elapsed})
		r.sink.OnScriptSuccess(s.Identity, elapsed)
		r.log.Debugw("script applied", "script", s.Identity, "duration_ms", elapsed.Milliseconds())
	}

	if err := strategy.Finish(ctx); err != nil {
		return abort(errors.Mark(errors.Wrap(err, "failed to commit"), errors.ErrExecution))
	}
	return nil
}

// apply executes one script and records it. The script runs detached from
// ctx's cancellation, bounded by the connection timeout.
func (r *run) apply(ctx context.Context, conn database.Connection, j journal.Journal, s scripts.Script, content, expanded string) error {
	sctx, cancel := database.WithTimeout(context.WithoutCancel(ctx), r.plan.ConnectTimeout)
	defer cancel()

	if err := conn.ExecuteScript(sctx, expanded); err != nil {
		return errors.Script(s.Identity, errors.ErrExecution, err)
	}

	entry := journal.Entry{Identity: s.Identity, AppliedAt: r.now().UTC(), Hash: journal.Hash(content)}
	if s.Kind == plan.RunAlways {
		if err := j.RecordRunAlways(sctx, entry); err != nil {
			return errors.Script(s.Identity, errors.ErrJournalWrite, err)
		}
		return nil
	}
	if err := j.RecordApplied(sctx, entry); err != nil {
		return errors.Script(s.Identity, errors.ErrJournalWrite, err)
	}
	return nil
}
