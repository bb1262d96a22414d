package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLockupIsSingleton(t *testing.T) {
	require.Same(t, Lockup(), Lockup())
}

func TestRecorders(t *testing.T) {
	m := Lockup()
	before := testutil.ToFloat64(m.Inspections().WithLabelValues("ok"))
	m.RecordInspection("ok")
	require.Equal(t, before+1, testutil.ToFloat64(m.Inspections().WithLabelValues("ok")))

	failures := testutil.ToFloat64(m.DecodeFailures())
	m.RecordDecodeFailure()
	require.Equal(t, failures+1, testutil.ToFloat64(m.DecodeFailures()))

	m.ObserveRPC("block", "ok", 15*time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.rpcRequests.WithLabelValues("block", "ok")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *LockupMetrics
	require.NotPanics(t, func() {
		m.ObserveRPC("query", "error", time.Second)
		m.RecordInspection("rpc_error")
		m.RecordDecodeFailure()
	})
}
