package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilPublisherIsSafe(t *testing.T) {
	t.Run("nil publisher reports not connected", func(t *testing.T) {
		var p *Publisher
		assert.False(t, p.Connected())
	})

	t.Run("Nil() returns a safe-to-call publisher", func(t *testing.T) {
		p := Nil()
		assert.False(t, p.Connected())
		err := p.PublishResult(context.Background(), "run-1", map[string]int{"x": 1})
		assert.NoError(t, err)
		p.Close()
	})
}
