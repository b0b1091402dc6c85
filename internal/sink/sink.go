// Package sink reports migration progress to the operator.
package sink

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/dbup-tool/dbup/internal/errors"
	"github.com/dbup-tool/dbup/internal/strutil"
)

// Sink receives engine events. Implementations must not fail.
type Sink interface {
	OnScriptStart(identity string)
	OnScriptSuccess(identity string, duration time.Duration)
	OnScriptFailure(identity string, err error)
	OnRunComplete(applied, skipped int)
}

// Options are the shared inputs every sink kind is built from.
type Options struct {
	Out    io.Writer
	Logger *zap.SugaredLogger
}

// DefaultKind is used when the configuration does not set logTo.
const DefaultKind = "console"

var kinds = map[string]func(Options) Sink{
	"console": func(o Options) Sink { return NewConsole(o.Out) },
	"trace":   func(o Options) Sink { return NewTrace(o.Logger) },
	"null":    func(Options) Sink { return Null{} },
}

// Kinds lists the sink kinds, sorted.
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// New builds the sink named kind. Empty kind means DefaultKind.
func New(kind string, opts Options) (Sink, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	name := strings.ToLower(strings.TrimSpace(kind))
	if name == "" {
		name = DefaultKind
	}
	ctor, ok := kinds[name]
	if !ok {
		err := errors.Newf("unknown logTo %q; %s", kind, strutil.Suggest(kind, Kinds()))
		return nil, errors.Mark(err, errors.ErrInvalidPlan)
	}
	return ctor(opts), nil
}

// Console writes human-readable progress lines.
type Console struct {
	out  io.Writer
	ok   *color.Color
	fail *color.Color
	dim  *color.Color
}

// NewConsole creates a console sink writing progress to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:  out,
		ok:   color.New(color.FgGreen),
		fail: color.New(color.FgRed, color.Bold),
		dim:  color.New(color.Faint),
	}
}

func (c *Console) OnScriptStart(identity string) {
	_, _ = c.dim.Fprintf(c.out, "Executing %s\n", identity)
}

func (c *Console) OnScriptSuccess(identity string, duration time.Duration) {
	_, _ = c.ok.Fprintf(c.out, "✓ %s (%s)\n", identity, duration.Round(time.Millisecond))
}

// OnScriptFailure marks the script as failed in the progress stream. The
// error itself is reported once, by the caller that receives it.
func (c *Console) OnScriptFailure(identity string, _ error) {
	if identity == "" {
		return
	}
	_, _ = c.fail.Fprintf(c.out, "Failed %s\n", identity)
}

func (c *Console) OnRunComplete(applied, skipped int) {
	if applied == 0 {
		_, _ = fmt.Fprintf(c.out, "Database is up to date (%d script(s) already applied)\n", skipped)
		return
	}
	_, _ = c.ok.Fprintf(c.out, "Applied %d script(s), skipped %d\n", applied, skipped)
}

// Trace emits every event as a structured log entry.
type Trace struct {
	logger *zap.SugaredLogger
}

func NewTrace(logger *zap.SugaredLogger) *Trace {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Trace{logger: logger}
}

func (t *Trace) OnScriptStart(identity string) {
	t.logger.Infow("script started", "script", identity)
}

func (t *Trace) OnScriptSuccess(identity string, duration time.Duration) {
	t.logger.Infow("script applied", "script", identity, "duration_ms", duration.Milliseconds())
}

func (t *Trace) OnScriptFailure(identity string, err error) {
	t.logger.Errorw("script failed", "script", identity, "error", err)
}

func (t *Trace) OnRunComplete(applied, skipped int) {
	t.logger.Infow("run complete", "applied", applied, "skipped", skipped)
}

// Null discards every event.
type Null struct{}

func (Null) OnScriptStart(string)                  {}
func (Null) OnScriptSuccess(string, time.Duration) {}
func (Null) OnScriptFailure(string, error)         {}
func (Null) OnRunComplete(int, int)                {}

// Multi forwards each event to every sink in order.
type Multi []Sink

func (m Multi) OnScriptStart(identity string) {
	for _, s := range m {
		s.OnScriptStart(identity)
	}
}

func (m Multi) OnScriptSuccess(identity string, duration time.Duration) {
	for _, s := range m {
		s.OnScriptSuccess(identity, duration)
	}
}

func (m Multi) OnScriptFailure(identity string, err error) {
	for _, s := range m {
		s.OnScriptFailure(identity, err)
	}
}

func (m Multi) OnRunComplete(applied, skipped int) {
	for _, s := range m {
		s.OnRunComplete(applied, skipped)
	}
}
