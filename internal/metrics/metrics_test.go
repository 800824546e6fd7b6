package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap/zaptest"
)

func TestNewOTel_RecordsWithoutPanicking(t *testing.T) {
	t.Parallel()

	r := NewOTel(noop.NewMeterProvider().Meter("test"), zaptest.NewLogger(t))
	require.IsType(t, &OTel{}, r)
	r.Decision(context.Background(), "request", "allow")

	global := NewOTel(nil, nil)
	global.Decision(context.Background(), "comment", "deny")
}

func TestNop(t *testing.T) {
	t.Parallel()
	var r Recorder = Nop{}
	r.Decision(context.Background(), "x", "y")
}
