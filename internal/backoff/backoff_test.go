package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixed(t *testing.T) {
	f := Fixed{Interval: time.Second}
	assert.Equal(t, time.Second, f.Delay(1))
	assert.Equal(t, time.Second, f.Delay(5))
}

func TestExponential(t *testing.T) {
	e := Exponential{Base: 100 * time.Millisecond, Max: 500 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, e.Delay(1))
	assert.Equal(t, 200*time.Millisecond, e.Delay(2))
	assert.Equal(t, 400*time.Millisecond, e.Delay(3))
	assert.Equal(t, 500*time.Millisecond, e.Delay(4))
	assert.Equal(t, 500*time.Millisecond, e.Delay(10))
	assert.Equal(t, 100*time.Millisecond, e.Delay(0))
}
