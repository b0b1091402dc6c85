package errors

import "fmt"

// Failure kinds. Wrap these (or Mark with them) to classify a failure.
var (
	ErrInvalidPlan        = New("invalid plan")
	ErrSourceNotFound     = New("script source not found")
	ErrSourceUnreadable   = New("script source unreadable")
	ErrDiscovery          = New("discovery error")
	ErrUnresolvedVariable = New("unresolved variable")
	ErrConnection         = New("connection error")
	ErrExecution          = New("execution error")
	ErrJournalWrite       = New("journal write failed")
)

var kindNames = []struct {
	sentinel error
	name     string
}{
	{ErrInvalidPlan, "InvalidPlan"},
	{ErrSourceNotFound, "SourceNotFound"},
	{ErrSourceUnreadable, "SourceUnreadable"},
	{ErrDiscovery, "DiscoveryError"},
	{ErrUnresolvedVariable, "UnresolvedVariable"},
	{ErrConnection, "ConnectionError"},
	{ErrExecution, "ExecutionError"},
	{ErrJournalWrite, "JournalWriteFailed"},
}

// Kind returns the taxonomy name of err, or "Error" when err is not classified.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindNames {
		if Is(err, k.sentinel) {
			return k.name
		}
	}
	return "Error"
}

// ScriptError attaches the identity of the script that caused a failure.
type ScriptError struct {
	Identity string
	Err      error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s: %v", e.Identity, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// Script wraps err with the script identity and marks it with kind.
func Script(identity string, kind error, err error) error {
	if err == nil {
		err = kind
	}
	return WithStack(Mark(&ScriptError{Identity: identity, Err: err}, kind))
}

// ScriptIdentity returns the identity of the failing script carried by err.
func ScriptIdentity(err error) (string, bool) {
	var se *ScriptError
	if As(err, &se) {
		return se.Identity, true
	}
	return "", false
}

// UnresolvedVariableError reports a placeholder with no value in the variable table.
type UnresolvedVariableError struct {
	Name string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("unresolved variable ${%s}", e.Name)
}

// UnresolvedVariable returns a marked UnresolvedVariableError for name.
func UnresolvedVariable(name string) error {
	return WithStack(Mark(&UnresolvedVariableError{Name: name}, ErrUnresolvedVariable))
}
