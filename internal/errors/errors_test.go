package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorFormatsCodeAndMessage(t *testing.T) {
	err := New(CodeTxInFlight, "transaction pending for key %q", "nextCard-1-0xabc")

	want := `TX_IN_FLIGHT: transaction pending for key "nextCard-1-0xabc"`
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(CodeChainCall, cause, "submit answer")

	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be matchable with errors.Is")
	}
	if CodeOf(err) != CodeChainCall {
		t.Fatalf("expected CHAIN_CALL_FAILED, got %s", CodeOf(err))
	}
}

func TestCodeOfThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeRoundSyncTimeout, "round never appeared"))

	if CodeOf(err) != CodeRoundSyncTimeout {
		t.Fatalf("expected ROUND_SYNC_TIMEOUT through wrapping, got %s", CodeOf(err))
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if CodeOf(stderrors.New("plain")) != CodeUnknown {
		t.Fatal("expected plain errors to map to CodeUnknown")
	}
	if !HasCode(New(CodeAccountMissing, "no wallet"), CodeAccountMissing) {
		t.Fatal("expected HasCode to match")
	}
}
