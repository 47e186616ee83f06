package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservePoll(t *testing.T) {
	before := testutil.ToFloat64(snapshotPolls.WithLabelValues(string(PollFailed)))

	ObservePoll(PollFailed)
	ObservePoll(PollFailed)

	assert.Equal(t, before+2, testutil.ToFloat64(snapshotPolls.WithLabelValues(string(PollFailed))))
}

func TestSetGraphSize(t *testing.T) {
	SetGraphSize(3, 2, 4)

	assert.Equal(t, float64(3), testutil.ToFloat64(graphNodes.WithLabelValues("renter")))
	assert.Equal(t, float64(2), testutil.ToFloat64(graphNodes.WithLabelValues("provider")))
	assert.Equal(t, float64(4), testutil.ToFloat64(graphEdges))
}
