package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestObserveBeforeInitIsNoop(t *testing.T) {
	// must not panic while collectors are nil
	if checksTotal != nil {
		t.Skip("collectors already registered by another test")
	}
	ObserveCheck(true, "", time.Millisecond)
	IncTransition("went_down")
	IncNotify(ResultOK)
	IncKeepalive(ResultError)
	IncGatewayReconnect()
	IncHTTPRequest("/api/status", 200)
}

func TestHandlerExposesCollectors(t *testing.T) {
	Init(nil, zap.NewNop())
	Init(nil, zap.NewNop()) // second call is a no-op

	ObserveCheck(false, "timeout", 2*time.Second)
	IncTransition("went_down")

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	out := string(body)

	for _, want := range []string{
		`botwatch_checks_total{cause="timeout",result="down"} 1`,
		`botwatch_transitions_total{kind="went_down"} 1`,
		`botwatch_target_up 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
