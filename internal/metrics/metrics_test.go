package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSetOracleSize(t *testing.T) {
	SetOracleSize("sell", 3)
	require.Equal(t, float64(3), testutil.ToFloat64(OracleSize.WithLabelValues("sell")))

	SetOracleSize("sell", 1)
	require.Equal(t, float64(1), testutil.ToFloat64(OracleSize.WithLabelValues("sell")))
}

func TestRecordDispatch(t *testing.T) {
	before := testutil.ToFloat64(BundlesDispatched.WithLabelValues("solo", "included"))
	RecordDispatch("solo", "included")
	after := testutil.ToFloat64(BundlesDispatched.WithLabelValues("solo", "included"))
	require.Equal(t, before+1, after)
}

func TestObserveLatencyRecordsASample(t *testing.T) {
	before := testutil.CollectAndCount(SimulationLatency)
	ObserveLatency("find_amount_in", time.Now())
	after := testutil.CollectAndCount(SimulationLatency)
	require.GreaterOrEqual(t, after, before)
}
