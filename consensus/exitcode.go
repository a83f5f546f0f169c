package consensus

import (
	"errors"
	"fmt"
)

// ExitCode is the signed 8-bit status a script returns to the verifier.
// The numeric values are a stable external contract.
type ExitCode int8

const (
	EXIT_OK ExitCode = 0

	// Data-access failures surfaced by the transition view.
	EXIT_INDEX_OUT_OF_BOUND ExitCode = 1
	EXIT_ITEM_MISSING       ExitCode = 2
	EXIT_LENGTH_NOT_ENOUGH  ExitCode = 3
	EXIT_ENCODING           ExitCode = 4
	EXIT_WAIT_FAILURE       ExitCode = 5
	EXIT_INVALID_FD         ExitCode = 6
	EXIT_OTHER_END_CLOSED   ExitCode = 7
	EXIT_MAX_VMS_SPAWNED    ExitCode = 8
	EXIT_MAX_FDS_CREATED    ExitCode = 9

	// Type id rule violations.
	TYPEID_ERR_CELL_NUM ExitCode = 20
	TYPEID_ERR_MISMATCH ExitCode = 21
	TYPEID_ERR_ARGS_LEN ExitCode = 22
	TYPEID_ERR_LOCK     ExitCode = 23

	// EXIT_SCRIPT_FAILURE is what AlwaysFailure returns.
	EXIT_SCRIPT_FAILURE ExitCode = -1
)

var exitCodeNames = map[ExitCode]string{
	EXIT_OK:                 "OK",
	EXIT_INDEX_OUT_OF_BOUND: "INDEX_OUT_OF_BOUND",
	EXIT_ITEM_MISSING:       "ITEM_MISSING",
	EXIT_LENGTH_NOT_ENOUGH:  "LENGTH_NOT_ENOUGH",
	EXIT_ENCODING:           "ENCODING",
	EXIT_WAIT_FAILURE:       "WAIT_FAILURE",
	EXIT_INVALID_FD:         "INVALID_FD",
	EXIT_OTHER_END_CLOSED:   "OTHER_END_CLOSED",
	EXIT_MAX_VMS_SPAWNED:    "MAX_VMS_SPAWNED",
	EXIT_MAX_FDS_CREATED:    "MAX_FDS_CREATED",
	TYPEID_ERR_CELL_NUM:     "TYPEID_ERR_CELL_NUM",
	TYPEID_ERR_MISMATCH:     "TYPEID_ERR_MISMATCH",
	TYPEID_ERR_ARGS_LEN:     "TYPEID_ERR_ARGS_LEN",
	TYPEID_ERR_LOCK:         "TYPEID_ERR_LOCK",
	EXIT_SCRIPT_FAILURE:     "SCRIPT_FAILURE",
}

func (c ExitCode) String() string {
	if name, ok := exitCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("EXIT_%d", int8(c))
}

// ScriptError is a non-zero script outcome.
type ScriptError struct {
	Code ExitCode
	Msg  string
}

func (e *ScriptError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return fmt.Sprintf("script exit %d (%s)", int8(e.Code), e.Code)
	}
	return fmt.Sprintf("script exit %d (%s): %s", int8(e.Code), e.Code, e.Msg)
}

func scripterr(code ExitCode, msg string) error {
	return &ScriptError{Code: code, Msg: msg}
}

// ExitCodeOf maps a validation outcome to the status the host reports.
// nil maps to 0; errors without a *ScriptError in their chain map to
// EXIT_SCRIPT_FAILURE.
func ExitCodeOf(err error) int8 {
	if err == nil {
		return int8(EXIT_OK)
	}
	var se *ScriptError
	if errors.As(err, &se) {
		return int8(se.Code)
	}
	return int8(EXIT_SCRIPT_FAILURE)
}
