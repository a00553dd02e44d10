package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Counts(t *testing.T) {
	c := New()
	c.Turn(OutcomeReplied)
	c.Turn(OutcomeReplied)
	c.Turn(OutcomeFailed)
	c.ChunksSent(3)
	c.ChunksSent(0)
	c.Tokens(40, 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.turns.WithLabelValues(OutcomeReplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.turns.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.chunks))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.tokens.WithLabelValues("input")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.tokens.WithLabelValues("output")))
}

func TestCollectors_ObserveBoundary(t *testing.T) {
	c := New()
	c.ObserveBoundary(BoundaryCompletion, 2*time.Second, nil)
	c.ObserveBoundary(BoundaryDocuments, time.Second, errors.New("boom"))

	assert.Equal(t, 2, testutil.CollectAndCount(c.latency))
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.Turn(OutcomeReplied)
		c.ObserveBoundary(BoundarySend, time.Second, nil)
		c.ChunksSent(1)
		c.Tokens(1, 1)
	})
}

func TestCollectors_Handler(t *testing.T) {
	c := New()
	c.Turn(OutcomeReplied)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `nomic_lawyer_turns_total{outcome="replied"} 1`)
}
