package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestKindOfWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("withdraw: %w", ErrNothingToWithdraw)
	if got := KindOf(wrapped); got != KindNothingToDo {
		t.Fatalf("unexpected kind: got %s want %s", got, KindNothingToDo)
	}
	if !stderrors.Is(wrapped, ErrNothingToWithdraw) {
		t.Fatalf("sentinel lost through wrapping")
	}
	if got := KindOf(stderrors.New("boom")); got != KindInternal {
		t.Fatalf("plain errors should be internal, got %s", got)
	}
}

func TestParamViolationClassification(t *testing.T) {
	err := fmt.Errorf("set parameters: %w", &ParamViolation{
		Field: "profit_fee_bps",
		Value: "2000",
		Limit: "< 2000",
		Err:   ErrProfitFeeCeiling,
	})
	if !Is(err, KindInvariant) {
		t.Fatalf("expected invariant kind, got %s", KindOf(err))
	}
	if !stderrors.Is(err, ErrProfitFeeCeiling) {
		t.Fatalf("expected violation to unwrap to ceiling sentinel")
	}
	var violation *ParamViolation
	if !stderrors.As(err, &violation) || violation.Field != "profit_fee_bps" {
		t.Fatalf("expected typed violation, got %v", err)
	}
}
