package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("busy")

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Fixed(0, 0).Do(context.Background(), func() error {
		calls++
		if calls < 4 {
			return errBusy
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestDoExhausted(t *testing.T) {
	calls := 0
	err := Fixed(3, time.Millisecond).Do(context.Background(), func() error {
		calls++
		return errBusy
	}, nil)

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errBusy)

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 3, ex.Attempts)
}

func TestDoNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Fixed(0, 0).Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return errBusy
		}
		return fatal
	}, func(err error) bool { return errors.Is(err, errBusy) })

	assert.Equal(t, 2, calls)
	assert.Same(t, fatal, err)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Fixed(0, time.Hour).Do(ctx, func() error {
		calls++
		cancel()
		return errBusy
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	p := Policy{Delay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 30 * time.Millisecond}

	d := p.Delay
	var got []time.Duration
	for i := 0; i < 4; i++ {
		got = append(got, d)
		d = p.next(d)
	}
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 30 * time.Millisecond}, got)
}
