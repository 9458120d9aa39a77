package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Grounded on the teacher's tests/performance/benchmark_test.go: a
// wall-clock budget assertion over a batch run rather than a Go
// b.N microbenchmark, since what matters here is that a modestly
// sized batch stays well clear of a pathological slowdown.
func TestBatchCompletesWithinBudget(t *testing.T) {
	t.Run("10 replications of the M/M/1 scenario finish quickly", func(t *testing.T) {
		cfg := mm1Config(t, 10, 12345)
		d := New(cfg, Options{})

		start := time.Now()
		res, err := d.Run(context.Background())
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, 10, res.Successful)
		assert.Less(t, elapsed, 10*time.Second,
			"a 10-replication batch of a 2000-time-unit M/M/1 run should finish well within 10s")
	})
}
