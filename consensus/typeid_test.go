package consensus

import (
	"bytes"
	"testing"

	"github.com/u2/ckb-time-oracle/crypto"
)

type countingHasher struct {
	inner crypto.HashProvider
	calls int
}

func (h *countingHasher) Name() string { return h.inner.Name() }

func (h *countingHasher) Sum256(parts ...[]byte) [32]byte {
	h.calls++
	return h.inner.Sum256(parts...)
}

// stubView is a synthetic transition: outputTypes[i] == nil means output i
// has no type script.
type stubView struct {
	groupInputs  int
	groupOutputs int
	firstInput   []byte
	outputTypes  []*[32]byte
	groupLocks   [][32]byte
	args         []byte
}

func (v *stubView) GroupInputCountAtLeast(n int) bool  { return v.groupInputs >= n }
func (v *stubView) GroupOutputCountAtLeast(n int) bool { return v.groupOutputs >= n }

func (v *stubView) FirstAbsoluteInput() ([]byte, error) {
	if v.firstInput == nil {
		return nil, scripterr(EXIT_INDEX_OUT_OF_BOUND, "no inputs")
	}
	return v.firstInput, nil
}

func (v *stubView) OutputTypeHash(i int) ([32]byte, bool, error) {
	if i < 0 || i >= len(v.outputTypes) {
		return [32]byte{}, false, scripterr(EXIT_INDEX_OUT_OF_BOUND, "output")
	}
	if v.outputTypes[i] == nil {
		return [32]byte{}, false, nil
	}
	return *v.outputTypes[i], true, nil
}

func (v *stubView) GroupOutputLockHash(i int) ([32]byte, error) {
	if i < 0 || i >= len(v.groupLocks) {
		return [32]byte{}, scripterr(EXIT_INDEX_OUT_OF_BOUND, "group output")
	}
	return v.groupLocks[i], nil
}

func (v *stubView) OwnArgs() ([]byte, error) { return v.args, nil }

var (
	testSelf     = [32]byte{0x5e, 0x1f}
	testLockHash = [32]byte{0x10, 0xc4}
	testInput    = CellInput{Since: 0, PreviousOutput: OutPoint{TxHash: [32]byte{0xaa}, Index: 3}}
)

func mintView(t *testing.T, hasher crypto.HashProvider, at int) *stubView {
	t.Helper()
	self := testSelf
	outputs := make([]*[32]byte, at+1)
	outputs[at] = &self
	typeID := DeriveTypeID(hasher, testInput, uint64(at))
	return &stubView{
		groupOutputs: 1,
		firstInput:   testInput.Serialize(),
		outputTypes:  outputs,
		groupLocks:   [][32]byte{testLockHash},
		args:         TypeIDArgs(typeID, testLockHash),
	}
}

func mustExit(t *testing.T, err error, want ExitCode) {
	t.Helper()
	if got := ExitCodeOf(err); got != int8(want) {
		t.Fatalf("exit=%d (%v), want %d", got, err, int8(want))
	}
}

func TestValidateTypeID_MintAtIndexZero(t *testing.T) {
	h := crypto.Default()
	if err := ValidateTypeID(mintView(t, h, 0), testSelf, h, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func TestValidateTypeID_MintAtLaterIndex(t *testing.T) {
	h := crypto.Default()
	for _, at := range []int{1, 2, 5} {
		if err := ValidateTypeID(mintView(t, h, at), testSelf, h, nil); err != nil {
			t.Fatalf("mint at %d: %v", at, err)
		}
	}
}

func TestValidateTypeID_MintIndexMattersForDerivation(t *testing.T) {
	h := crypto.Default()
	v := mintView(t, h, 1)
	// Declare the id derived for index 0 while the cell sits at index 1.
	wrong := DeriveTypeID(h, testInput, 0)
	v.args = TypeIDArgs(wrong, testLockHash)
	mustExit(t, ValidateTypeID(v, testSelf, h, nil), TYPEID_ERR_MISMATCH)
}

func TestValidateTypeID_ArbitraryArgsMismatch(t *testing.T) {
	h := crypto.Default()
	v := mintView(t, h, 0)
	v.args = bytes.Repeat([]byte{1}, 64)
	mustExit(t, ValidateTypeID(v, testSelf, h, nil), TYPEID_ERR_MISMATCH)
}

func TestValidateTypeID_UpdateSkipsHashing(t *testing.T) {
	h := &countingHasher{inner: crypto.Default()}
	v := &stubView{
		groupInputs:  1,
		groupOutputs: 1,
		firstInput:   testInput.Serialize(),
		groupLocks:   [][32]byte{testLockHash},
		// An id no derivation would produce: updates never re-derive.
		args: TypeIDArgs([32]byte{0xde, 0xad}, testLockHash),
	}
	if err := ValidateTypeID(v, testSelf, h, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if h.calls != 0 {
		t.Fatalf("update path hashed %d times", h.calls)
	}

	v.groupLocks = [][32]byte{{0x01}}
	mustExit(t, ValidateTypeID(v, testSelf, h, nil), TYPEID_ERR_LOCK)
	if h.calls != 0 {
		t.Fatalf("update path hashed %d times", h.calls)
	}
}

func TestValidateTypeID_NoDestroy(t *testing.T) {
	h := crypto.Default()
	for _, args := range [][]byte{
		TypeIDArgs([32]byte{1}, testLockHash),
		bytes.Repeat([]byte{0xff}, 64),
		bytes.Repeat([]byte{0x00}, 40),
	} {
		v := &stubView{groupInputs: 1, groupOutputs: 0, args: args}
		mustExit(t, ValidateTypeID(v, testSelf, h, nil), TYPEID_ERR_CELL_NUM)
	}
}

func TestValidateTypeID_Cardinality(t *testing.T) {
	h := crypto.Default()
	cases := []struct {
		name    string
		inputs  int
		outputs int
	}{
		{"two inputs", 2, 1},
		{"two outputs", 1, 2},
		{"mint with two outputs", 0, 2},
		{"nothing", 0, 0},
		{"three of each", 3, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// The args are a bogus id so a derivation would fail with 21;
			// cardinality must win.
			v := &stubView{
				groupInputs:  tc.inputs,
				groupOutputs: tc.outputs,
				firstInput:   testInput.Serialize(),
				outputTypes:  []*[32]byte{&testSelf, &testSelf, &testSelf},
				groupLocks:   [][32]byte{testLockHash, testLockHash, testLockHash},
				args:         bytes.Repeat([]byte{7}, 64),
			}
			mustExit(t, ValidateTypeID(v, testSelf, h, nil), TYPEID_ERR_CELL_NUM)
		})
	}
}

func TestValidateTypeID_ArgsTooShort(t *testing.T) {
	h := crypto.Default()

	// Shorter than the type id: rejected before any cardinality check.
	v := &stubView{groupInputs: 5, groupOutputs: 0, args: []byte{1, 1, 1, 1}}
	mustExit(t, ValidateTypeID(v, testSelf, h, nil), TYPEID_ERR_ARGS_LEN)

	// A type id but no lock hash: mint derivation passes, then args run out.
	mv := mintView(t, h, 0)
	mv.args = mv.args[:48]
	mustExit(t, ValidateTypeID(mv, testSelf, h, nil), TYPEID_ERR_ARGS_LEN)

	// Same on the update path.
	uv := &stubView{groupInputs: 1, groupOutputs: 1, groupLocks: [][32]byte{testLockHash}, args: make([]byte, 32)}
	mustExit(t, ValidateTypeID(uv, testSelf, h, nil), TYPEID_ERR_ARGS_LEN)
}

func TestValidateTypeID_AuthorizationBinding(t *testing.T) {
	h := crypto.Default()
	v := mintView(t, h, 0)
	v.groupLocks = [][32]byte{{}}
	mustExit(t, ValidateTypeID(v, testSelf, h, nil), TYPEID_ERR_LOCK)
}

func TestValidateTypeID_ExtraArgsIgnored(t *testing.T) {
	h := crypto.Default()
	v := mintView(t, h, 0)
	v.args = append(v.args, 0x01, 0x02)
	if err := ValidateTypeID(v, testSelf, h, nil); err != nil {
		t.Fatalf("args with trailing bytes: %v", err)
	}
}

func TestValidateTypeID_LocateNotFound(t *testing.T) {
	h := crypto.Default()
	other := [32]byte{0x99}
	v := &stubView{
		groupOutputs: 1,
		firstInput:   testInput.Serialize(),
		outputTypes:  []*[32]byte{nil, &other},
		groupLocks:   [][32]byte{testLockHash},
		args:         TypeIDArgs([32]byte{}, testLockHash),
	}
	mustExit(t, ValidateTypeID(v, testSelf, h, nil), EXIT_INDEX_OUT_OF_BOUND)
}

func TestValidateTypeID_MissingFirstInput(t *testing.T) {
	h := crypto.Default()
	v := mintView(t, h, 0)
	v.firstInput = nil
	mustExit(t, ValidateTypeID(v, testSelf, h, nil), EXIT_INDEX_OUT_OF_BOUND)
}

func TestValidateTypeID_Deterministic(t *testing.T) {
	h := crypto.Default()
	v := mintView(t, h, 2)
	v.groupLocks = [][32]byte{{0x01}}
	first := ExitCodeOf(ValidateTypeID(v, testSelf, h, nil))
	for i := 0; i < 10; i++ {
		if got := ExitCodeOf(ValidateTypeID(v, testSelf, h, nil)); got != first {
			t.Fatalf("run %d: exit=%d, first run %d", i, got, first)
		}
	}
}

func TestTypeIDArgsHelpers(t *testing.T) {
	id := [32]byte{1, 2, 3}
	args := TypeIDArgs(id, testLockHash)
	if len(args) != TypeIDArgsLen {
		t.Fatalf("len=%d", len(args))
	}
	got, ok := TypeIDFromArgs(args)
	if !ok || got != id {
		t.Fatalf("TypeIDFromArgs: %x ok=%v", got, ok)
	}
	if _, ok := TypeIDFromArgs(args[:31]); ok {
		t.Fatalf("short args reported a type id")
	}
}
