package distribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/queuesim/internal/rng"
)

func TestNewExponential(t *testing.T) {
	t.Run("rejects non-positive rate", func(t *testing.T) {
		_, err := NewExponential(0)
		assert.Error(t, err)

		_, err = NewExponential(-1)
		assert.Error(t, err)
	})

	t.Run("accepts positive rate", func(t *testing.T) {
		e, err := NewExponential(3.5)
		require.NoError(t, err)
		assert.Equal(t, 3.5, e.Rate)
	})
}

func TestExponentialSample(t *testing.T) {
	t.Run("produces non-negative samples", func(t *testing.T) {
		e, err := NewExponential(2)
		require.NoError(t, err)
		s := rng.New(1)

		for i := 0; i < 10000; i++ {
			v, err := e.Sample(s)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, 0.0)
		}
	})

	t.Run("same seed produces identical samples", func(t *testing.T) {
		e, err := NewExponential(2)
		require.NoError(t, err)

		a := rng.New(99)
		b := rng.New(99)

		for i := 0; i < 100; i++ {
			va, err := e.Sample(a)
			require.NoError(t, err)
			vb, err := e.Sample(b)
			require.NoError(t, err)
			assert.Equal(t, va, vb)
		}
	})
}

func TestNewConstant(t *testing.T) {
	t.Run("rejects negative value", func(t *testing.T) {
		_, err := NewConstant(-0.5)
		assert.Error(t, err)
	})

	t.Run("accepts zero and positive values", func(t *testing.T) {
		c, err := NewConstant(0)
		require.NoError(t, err)
		assert.Equal(t, 0.0, c.Value)

		c, err = NewConstant(2.5)
		require.NoError(t, err)
		assert.Equal(t, 2.5, c.Value)
	})
}

func TestConstantSample(t *testing.T) {
	t.Run("always returns the configured value", func(t *testing.T) {
		c, err := NewConstant(4.2)
		require.NoError(t, err)
		s := rng.New(5)

		for i := 0; i < 10; i++ {
			v, err := c.Sample(s)
			require.NoError(t, err)
			assert.Equal(t, 4.2, v)
		}
	})

	t.Run("consumes one draw per sample to keep the shared stream in sync", func(t *testing.T) {
		c, err := NewConstant(1)
		require.NoError(t, err)

		withDraw := rng.New(3)
		reference := rng.New(3)

		_, err = c.Sample(withDraw)
		require.NoError(t, err)
		_ = reference.Float64()

		assert.Equal(t, reference.Float64(), withDraw.Float64())
	})
}
