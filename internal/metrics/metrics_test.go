package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	zerrors "github.com/zzenonn/zplace/internal/errors"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: "ok"},
		{err: zerrors.InvalidArgumentError("bad"), want: "invalid_argument"},
		{err: zerrors.NotFoundError("pool", 1), want: "not_found"},
		{err: zerrors.RecordTooBigError(2, 1), want: "record_too_big"},
		{err: zerrors.AllocationError("layout", 9, 8), want: "out_of_memory"},
		{err: zerrors.NotImplementedError("reintegration", "ring"), want: "not_implemented"},
		{err: fmt.Errorf("wrapped: %w", zerrors.ErrNotFound), want: "not_found"},
		{err: errors.New("boom"), want: "error"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Outcome(tt.err), "%v", tt.err)
	}
}

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("place", nil)
	m.Observe("place", nil)
	m.Observe("rebuild", zerrors.RecordTooBigError(3, 0))

	families, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "zplace_placement_calls_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			got[labels["op"]+"/"+labels["outcome"]] = metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, map[string]float64{"place/ok": 2, "rebuild/record_too_big": 1}, got)

	// Two private instances do not collide.
	require.NotPanics(t, func() { New(nil); New(nil) })
}
