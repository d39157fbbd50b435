package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(retries int) RetryConfig {
	randomize := false
	return RetryConfig{
		Retries:    retries,
		Factor:     2,
		MinTimeout: time.Millisecond,
		MaxTimeout: 5 * time.Millisecond,
		Randomize:  &randomize,
	}
}

func TestNewBackOff(t *testing.T) {
	b := newBackOff(fastRetry(3))

	assert.Equal(t, time.Millisecond, b.InitialInterval)
	assert.Equal(t, 5*time.Millisecond, b.MaxInterval)
	assert.Equal(t, 2.0, b.Multiplier)
	assert.Zero(t, b.RandomizationFactor)

	cfg := DefaultConfig()
	assert.NotZero(t, newBackOff(cfg.Retry).RandomizationFactor)
}

func TestRetryConfig_MaxTries(t *testing.T) {
	assert.Equal(t, uint(6), RetryConfig{Retries: 5}.maxTries())
	assert.Equal(t, uint(1), RetryConfig{Retries: -1}.maxTries())
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	notified := 0

	got, err := retry(context.Background(), fastRetry(5), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	}, func(error, time.Duration) { notified++ })

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, notified)
}

func TestRetry_GivesUp(t *testing.T) {
	attempts := 0
	cause := errors.New("down")

	_, err := retry(context.Background(), fastRetry(2), func() (int, error) {
		attempts++
		return 0, cause
	}, nil)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NoRetry(t *testing.T) {
	attempts := 0
	_, err := retry(context.Background(), fastRetry(-1), func() (int, error) {
		attempts++
		return 0, errors.New("down")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}
