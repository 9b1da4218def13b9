package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danmuck/cantelemetry/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordFramesDropped("udp", "abandoned", 3)
	RecordFrameReceived("udp")
	RecordFrameProcessed("udp", "0x072")
	RecordFrameHandled("udp", 3*time.Microsecond)
	RecordFrameDropped("udp", "evicted")
	RecordPipelineError("udp", "frame_size")
	RecordCoalescerFlush("udp")
	RecordDatalogRow("IMU")
	RecordDatalogError("SUSPENSION")
}

func TestFrameDroppedCounterIncrements(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(framesDropped.WithLabelValues("metrics-test", "unknown_id"))
	RecordFrameDropped("metrics-test", "unknown_id")
	RecordFrameDropped("metrics-test", "unknown_id")
	after := testutil.ToFloat64(framesDropped.WithLabelValues("metrics-test", "unknown_id"))
	if after-before != 2 {
		t.Fatalf("unexpected counter delta: %v", after-before)
	}
}
