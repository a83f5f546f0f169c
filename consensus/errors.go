package consensus

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	TX_ERR_PARSE                 ErrorCode = "TX_ERR_PARSE"
	TX_ERR_EMPTY_INPUTS          ErrorCode = "TX_ERR_EMPTY_INPUTS"
	TX_ERR_OUTPUTS_DATA_MISMATCH ErrorCode = "TX_ERR_OUTPUTS_DATA_MISMATCH"
	TX_ERR_DUPLICATE_INPUT       ErrorCode = "TX_ERR_DUPLICATE_INPUT"
	TX_ERR_MISSING_CELL          ErrorCode = "TX_ERR_MISSING_CELL"

	TX_ERR_SCRIPT_NOT_FOUND ErrorCode = "TX_ERR_SCRIPT_NOT_FOUND"
	TX_ERR_SCRIPT           ErrorCode = "TX_ERR_SCRIPT"
	TX_ERR_CYCLES_EXCEEDED  ErrorCode = "TX_ERR_CYCLES_EXCEEDED"
)

type TxError struct {
	Code ErrorCode
	Msg  string
	// Err is the underlying cause, if any (a *ScriptError for TX_ERR_SCRIPT).
	Err error
}

func (e *TxError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *TxError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func txerr(code ErrorCode, msg string) error {
	return &TxError{Code: code, Msg: msg}
}

// TxErrorCode extracts the code of a *TxError anywhere in err's chain.
func TxErrorCode(err error) (ErrorCode, bool) {
	var te *TxError
	if errors.As(err, &te) {
		return te.Code, true
	}
	return "", false
}
