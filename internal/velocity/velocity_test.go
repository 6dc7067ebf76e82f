package velocity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowWithinBurst(t *testing.T) {
	l := NewLimiter(5)
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("user@example.com"), "request %d should be within burst", i)
	}
}

func TestLimiter_TripsAfterBurstExhausted(t *testing.T) {
	l := NewLimiter(2)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
}

func TestLimiter_EmptyKeyOrZeroCapAlwaysAllows(t *testing.T) {
	l := NewLimiter(0)
	assert.True(t, l.Allow("anything"))

	l2 := NewLimiter(1)
	assert.True(t, l2.Allow(""))
	assert.True(t, l2.Allow(""))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(1)
	assert.True(t, l.Allow("a@example.com"))
	assert.True(t, l.Allow("b@example.com"))
	assert.False(t, l.Allow("a@example.com"))
}

func TestAdmissionControl_Check(t *testing.T) {
	ac := NewAdmissionControl(1, 10)

	assert.False(t, ac.Check("a@example.com", "1.1.1.1"), "first request under both caps")
	assert.True(t, ac.Check("a@example.com", "1.1.1.1"), "second request over the email cap")
}

func TestAdmissionControl_IPOverThresholdAlsoFlags(t *testing.T) {
	ac := NewAdmissionControl(100, 1)

	assert.False(t, ac.Check("x@example.com", "9.9.9.9"))
	assert.True(t, ac.Check("y@example.com", "9.9.9.9"), "different email, same IP exceeding cap")
}
