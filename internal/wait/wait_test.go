package wait

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
)

func TestUntilSucceeds(t *testing.T) {
	calls := 0
	err := Until(context.Background(), Options{Operation: "count", Timeout: time.Second, Interval: time.Millisecond}, func() (bool, string, error) {
		calls++
		return calls == 3, fmt.Sprintf("calls=%d", calls), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntilTimesOutWithLastState(t *testing.T) {
	start := time.Now()
	err := Until(context.Background(), Options{Operation: "never", Timeout: 50 * time.Millisecond, Interval: 5 * time.Millisecond}, func() (bool, string, error) {
		return false, "url=/login", nil
	})

	var timeout *harnesserrors.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "never", timeout.Operation)
	assert.Equal(t, "url=/login", timeout.LastState)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUntilProbeErrorAborts(t *testing.T) {
	boom := errors.New("page closed")
	calls := 0
	err := Until(context.Background(), Options{Timeout: time.Second, Interval: time.Millisecond}, func() (bool, string, error) {
		calls++
		return false, "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntilHonoursParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Until(ctx, Options{Operation: "cancelled", Timeout: time.Minute, Interval: 5 * time.Millisecond}, func() (bool, string, error) {
		return false, "waiting", nil
	})

	var timeout *harnesserrors.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStable(t *testing.T) {
	values := []string{"/login", "/dashboard", "/dashboard"}
	i := 0
	got, err := Stable(context.Background(), Options{Timeout: time.Second, Interval: time.Millisecond}, func() string {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	})
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", got)
}

func TestStableTimesOut(t *testing.T) {
	n := 0
	_, err := Stable(context.Background(), Options{Operation: "settle", Timeout: 30 * time.Millisecond, Interval: 2 * time.Millisecond}, func() string {
		n++
		return fmt.Sprint(n)
	})
	assert.True(t, harnesserrors.IsTimeout(err))
}
