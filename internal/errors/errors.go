// Package errors provides error handling for dbup.
//
// It re-exports github.com/cockroachdb/errors so every error created in this
// module carries a stack trace and can carry user-facing hints, and it
// defines the failure taxonomy a migration run reports:
//
//	ErrInvalidPlan        bad or missing configuration, no database contact
//	ErrSourceNotFound     a script source root does not exist
//	ErrSourceUnreadable   I/O failure while enumerating or reading scripts
//	ErrDiscovery          discovery produced an inconsistent script set
//	ErrUnresolvedVariable a ${name} placeholder has no value
//	ErrConnection         the gateway could not connect
//	ErrExecution          a script's SQL failed
//	ErrJournalWrite       an applied script could not be recorded
//
// Failures are attached with Mark so errors.Is keeps working after wrapping.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace
