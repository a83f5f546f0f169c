package consensus

import (
	"errors"
	"fmt"
	"testing"
)

func TestTxError_ErrorFormatting(t *testing.T) {
	var e *TxError
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("nil receiver: %q", got)
	}

	e = &TxError{Code: TX_ERR_PARSE, Msg: ""}
	if got := e.Error(); got != "TX_ERR_PARSE" {
		t.Fatalf("empty msg: %q", got)
	}

	e = &TxError{Code: TX_ERR_PARSE, Msg: "bad"}
	if got := e.Error(); got != "TX_ERR_PARSE: bad" {
		t.Fatalf("with msg: %q", got)
	}
}

func TestTxerrReturnsTxError(t *testing.T) {
	err := txerr(TX_ERR_MISSING_CELL, "x")
	te, ok := err.(*TxError)
	if !ok {
		t.Fatalf("expected *TxError, got %T", err)
	}
	if te.Code != TX_ERR_MISSING_CELL || te.Msg != "x" {
		t.Fatalf("unexpected fields: %#v", te)
	}
	code, ok := TxErrorCode(fmt.Errorf("wrapped: %w", err))
	if !ok || code != TX_ERR_MISSING_CELL {
		t.Fatalf("TxErrorCode: code=%s ok=%v", code, ok)
	}
	if _, ok := TxErrorCode(errors.New("plain")); ok {
		t.Fatalf("plain error reported a tx code")
	}
}

func TestExitCodeOf(t *testing.T) {
	if got := ExitCodeOf(nil); got != 0 {
		t.Fatalf("nil: %d", got)
	}
	inner := scripterr(TYPEID_ERR_LOCK, "lock")
	if got := ExitCodeOf(inner); got != 23 {
		t.Fatalf("script error: %d", got)
	}
	wrapped := &TxError{Code: TX_ERR_SCRIPT, Err: inner}
	if got := ExitCodeOf(wrapped); got != 23 {
		t.Fatalf("wrapped script error: %d", got)
	}
	if got := ExitCodeOf(errors.New("boom")); got != -1 {
		t.Fatalf("plain error: %d", got)
	}
}

func TestExitCode_StableValues(t *testing.T) {
	want := map[ExitCode]int8{
		EXIT_INDEX_OUT_OF_BOUND: 1,
		EXIT_ITEM_MISSING:       2,
		EXIT_LENGTH_NOT_ENOUGH:  3,
		EXIT_ENCODING:           4,
		EXIT_MAX_FDS_CREATED:    9,
		TYPEID_ERR_CELL_NUM:     20,
		TYPEID_ERR_MISMATCH:     21,
		TYPEID_ERR_ARGS_LEN:     22,
		TYPEID_ERR_LOCK:         23,
	}
	for code, v := range want {
		if int8(code) != v {
			t.Fatalf("%s=%d, want %d", code, int8(code), v)
		}
	}
	if got := ExitCode(42).String(); got != "EXIT_42" {
		t.Fatalf("unknown code string: %q", got)
	}
}
