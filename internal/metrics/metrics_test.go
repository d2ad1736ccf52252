package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"nfsh_rpcs_total", "nfsh_rpc_duration_seconds", "nfsh_mounted", "nfsh_bytes_transferred_total"} {
		assert.True(t, names[want], "missing collector %s", want)
	}
	assert.Same(t, reg, m.Registry)
}

func TestRecordRPCIncrementsCounterAndObservesDuration(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRPC("mount", "MNT", "ok", 0.01)
	m.RecordRPC("mount", "MNT", "ok", 0.02)
	m.RecordRPC("mount", "MNT", "protocol_error", 0.01)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RPCsTotal.WithLabelValues("mount", "MNT", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RPCsTotal.WithLabelValues("mount", "MNT", "protocol_error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RPCDuration), "all three calls share the same program/procedure labels")
}

func TestSetMountedTogglesGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetMounted(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Mounted))

	m.SetMounted(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Mounted))
}

func TestAddBytesTransferredAccumulatesByDirection(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AddBytesTransferred("get", 100)
	m.AddBytesTransferred("get", 50)
	m.AddBytesTransferred("put", 25)

	assert.Equal(t, float64(150), testutil.ToFloat64(m.BytesTransferred.WithLabelValues("get")))
	assert.Equal(t, float64(25), testutil.ToFloat64(m.BytesTransferred.WithLabelValues("put")))
}

func TestNewNoopIsUsableWithoutACaller(t *testing.T) {
	m := NewNoop()
	require.NotNil(t, m)

	m.RecordRPC("nfs", "READ", "ok", 0.001)
	m.SetMounted(true)
	m.AddBytesTransferred("get", 10)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RPCsTotal.WithLabelValues("nfs", "READ", "ok")))
}

func TestNilRecorderMethodsAreNoops(t *testing.T) {
	var m *Recorder

	assert.NotPanics(t, func() {
		m.RecordRPC("nfs", "READ", "ok", 0.001)
		m.SetMounted(true)
		m.AddBytesTransferred("get", 10)
	})
}
