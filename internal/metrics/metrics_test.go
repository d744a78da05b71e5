package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersTrackHubEvents(t *testing.T) {
	m := New()

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.UsersOnline(3)
	m.MessageDelivered(4)
	m.MessageDelivered(0)
	m.SendFailed("rate_limited")
	m.SendFailed("rate_limited")
	m.SendFailed("forbidden")
	m.UnreadRecorded()

	if got := testutil.ToFloat64(m.sessions); got != 1 {
		t.Fatalf("sessions: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.usersOnline); got != 3 {
		t.Fatalf("users online: expected 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.delivered); got != 2 {
		t.Fatalf("delivered: expected 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.sendFailed.WithLabelValues("rate_limited")); got != 2 {
		t.Fatalf("rate_limited failures: expected 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.unread); got != 1 {
		t.Fatalf("unread: expected 1, got %v", got)
	}
}

func TestHandlerExposesChatMetrics(t *testing.T) {
	m := New()
	m.SessionOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "chat_sessions_open 1") {
		t.Fatalf("expected chat_sessions_open in output, got:\n%s", body)
	}
}
