package observability

import (
	"testing"
	"time"

	"github.com/danmuck/driftwire/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordPacketSent("probe-a", "data")
	RecordPacketReceived("beacon-a", "data")
	RecordDecodeError("beacon-a")
	RecordRetransmit("probe-a")
	RecordDeliveryFailure("probe-a")
	RecordRTT("probe-a", 12*time.Millisecond)
	SetActiveSessions("beacon-a", 3)
	RecordHTTPRequest("beacon-a", "GET", "/health", 200, 2*time.Millisecond)
}
