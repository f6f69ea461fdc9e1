package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelay(t *testing.T) {
	r := &Runner{
		cfg:    Config{Interval: time.Minute, Jitter: 0.1, MaxBackoff: 10 * time.Minute},
		jitter: func() float64 { return 1 },
	}

	assert.Equal(t, 66*time.Second, r.nextDelay(0))
	r.jitter = func() float64 { return 0 }
	assert.Equal(t, 54*time.Second, r.nextDelay(0))

	assert.Equal(t, 2*time.Minute, r.nextDelay(1))
	assert.Equal(t, 4*time.Minute, r.nextDelay(2))
	assert.Equal(t, 8*time.Minute, r.nextDelay(3))
	assert.Equal(t, 10*time.Minute, r.nextDelay(4))
	assert.Equal(t, 10*time.Minute, r.nextDelay(40))
}

func TestNextDelay_NoJitter(t *testing.T) {
	r := &Runner{cfg: Config{Interval: 30 * time.Second}}
	assert.Equal(t, 30*time.Second, r.nextDelay(0))
}
