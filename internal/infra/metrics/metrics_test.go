package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncFeedbackSubmittedLabels(t *testing.T) {
	before := testutil.ToFloat64(FeedbackSubmitted.WithLabelValues("identified"))
	IncFeedbackSubmitted(true)
	if got := testutil.ToFloat64(FeedbackSubmitted.WithLabelValues("identified")); got != before+1 {
		t.Fatalf("expected identified counter to grow by 1, got %v -> %v", before, got)
	}
}

func TestObserveNetworkRequestStatus(t *testing.T) {
	ObserveNetworkRequest("postgres", "", "", time.Now(), errors.New("boom"))
	if got := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("postgres", "unknown", "unknown", "error")); got < 1 {
		t.Fatalf("expected error request to be counted, got %v", got)
	}
}

func TestSetActiveSessions(t *testing.T) {
	SetActiveSessions(3)
	if got := testutil.ToFloat64(ActiveSessions); got != 3 {
		t.Fatalf("expected 3 active sessions, got %v", got)
	}
}
