package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrapf(ErrStaleSchedule, "advance schedule %s", "sched-1")

	assert.True(t, Is(err, ErrStaleSchedule))
	assert.False(t, Is(err, ErrInvalidFrequency))
	assert.Contains(t, err.Error(), "sched-1")
	assert.Contains(t, err.Error(), "schedule already advanced")
}

func TestSchedulerSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrNotFound, ErrInvalidFrequency, ErrStaleSchedule, ErrInvalidTransition, ErrConflict}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, Is(a, b), "%v should not match %v", a, b)
		}
	}
}

func TestIsNotFoundError(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(Wrap(ErrNotFound, "job j-1")))
	assert.True(t, IsNotFoundError(NewNotFoundError("schedule %s", "s-1")))
	assert.True(t, IsNotFoundError(New("character not found")))
	assert.False(t, IsNotFoundError(New("timeout")))
}

func TestInvalidRequestHelpers(t *testing.T) {
	err := NewInvalidRequestError("frequency value %d", 0)
	assert.True(t, IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "frequency value 0")

	wrapped := WrapInvalidRequest(New("bad slot"), "parse schedule")
	assert.True(t, IsInvalidRequestError(wrapped))
	assert.Contains(t, wrapped.Error(), "parse schedule")
}

func TestHintsAndDetailsSurviveWrapping(t *testing.T) {
	err := WithHint(ErrTimeout, "check generation.call_timeout_seconds")
	err = WithDetail(err, "step=image_generation iteration=2")
	err = Wrap(err, "execute job")

	assert.True(t, Is(err, ErrTimeout))
	require.Len(t, GetAllHints(err), 1)
	assert.Equal(t, "check generation.call_timeout_seconds", GetAllHints(err)[0])
	assert.Contains(t, GetAllDetails(err), "step=image_generation iteration=2")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WithDetail(nil, "detail"))
}

func TestStackTrace(t *testing.T) {
	detailed := fmt.Sprintf("%+v", New("with stack"))
	assert.Contains(t, detailed, "errors_test.go")
}

func ExampleWrap() {
	err := Wrap(ErrStaleSchedule, "advance schedule")
	fmt.Println(err)
	// Output: advance schedule: schedule already advanced
}
