package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"atlas/types"
)

func TestFailure_IsMatchesKindSentinel(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want error
	}{
		{"parse", KindParse, ErrParse},
		{"static", KindStaticPolicy, ErrStaticPolicy},
		{"timeout", KindTimeout, ErrTimeout},
		{"missing signal", KindMissingSignal, ErrMissingSignal},
		{"runtime fault", KindRuntimeFault, ErrRuntimeFault},
		{"runtime policy", KindRuntimePolicy, ErrRuntimePolicy},
		{"insufficient data", KindInsufficientData, ErrInsufficientData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("window run: %w", New(tt.kind, "boom"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("errors.Is(%v, %v) = false", err, tt.want)
			}
			if errors.Is(err, ErrInsufficientData) && tt.kind != KindInsufficientData {
				t.Fatalf("kind %s matched the wrong sentinel", tt.kind)
			}
		})
	}
}

func TestFailure_UnwrapsCause(t *testing.T) {
	f := Wrap(KindTimeout, context.DeadlineExceeded, "exceeded %s", "5s")
	if !errors.Is(f, context.DeadlineExceeded) {
		t.Fatalf("cause not reachable through Unwrap")
	}
	got, ok := As(fmt.Errorf("outer: %w", f))
	if !ok || got.Kind != KindTimeout {
		t.Fatalf("As() = %v, %v", got, ok)
	}
}

func TestFromValidation_Kinds(t *testing.T) {
	parseOnly := types.NewValidationResult([]types.Violation{
		{RuleID: "PARSE001", Category: types.CategoryParse, Bar: -1},
	})
	mixed := types.NewValidationResult([]types.Violation{
		{RuleID: "PARSE001", Category: types.CategoryParse, Bar: -1},
		{RuleID: "IMP001", Category: types.CategoryBannedImport, Bar: -1},
	})
	if k := FromValidation(parseOnly, false).Kind; k != KindParse {
		t.Errorf("parse-only kind = %s", k)
	}
	if k := FromValidation(mixed, false).Kind; k != KindStaticPolicy {
		t.Errorf("mixed kind = %s", k)
	}
	if k := FromValidation(mixed, true).Kind; k != KindRuntimePolicy {
		t.Errorf("runtime kind = %s", k)
	}
}

func TestFailure_AtCopies(t *testing.T) {
	base := New(KindRuntimeFault, "x")
	w := base.At(3, types.SegmentTest)
	if base.Window != -1 || w.Window != 3 || w.Segment != types.SegmentTest {
		t.Fatalf("At mutated or mis-set: base=%+v w=%+v", base, w)
	}
}
