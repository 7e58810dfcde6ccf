package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"agent error", newError(KindQuota, errors.New("x")), KindQuota},
		{"wrapped agent error", fmt.Errorf("reply: %w", newError(KindAuth, errors.New("x"))), KindAuth},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"plain", errors.New("boom"), KindOther},
	}
	for _, tc := range tests {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestCoarseFlags(t *testing.T) {
	t.Parallel()

	res := coarseFlags(false, map[string]bool{"self-harm/instructions": true})
	if !res.SelfHarm || res.Violence || res.Flagged {
		t.Fatalf("unexpected flags: %+v", res)
	}
	res = coarseFlags(true, map[string]bool{"harassment": true})
	if res.SelfHarm || !res.Violence || !res.Flagged {
		t.Fatalf("unexpected flags: %+v", res)
	}
}
