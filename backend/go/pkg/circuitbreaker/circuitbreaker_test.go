package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	var transitions []string
	cb := New(Settings{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, Closed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, Open, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []string{"Closed->Open"}, transitions)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	cb := New(Settings{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute}).(*breaker)
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, Open, cb.State())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, HalfOpen, cb.State())

	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, HalfOpen, cb.State())
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, Closed, cb.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}).(*breaker)
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errBoom })
	now = now.Add(2 * time.Minute)
	_ = cb.Execute(func() error { return errBoom })

	assert.Equal(t, Open, cb.State())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(Settings{FailureThreshold: 2, Timeout: time.Hour})

	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBoom })

	assert.Equal(t, Closed, cb.State())
}
