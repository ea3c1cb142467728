package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresOnAdvance(t *testing.T) {
	c := NewFake(epoch)
	fired := 0
	c.AfterFunc(5*time.Second, func() { fired++ })

	c.Advance(4 * time.Second)
	assert.Zero(t, fired)
	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
	c.Advance(time.Minute)
	assert.Equal(t, 1, fired)
	assert.Equal(t, epoch.Add(time.Minute+5*time.Second), c.Now())
}

func TestFakeStopPreventsCall(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(time.Hour)
	assert.False(t, fired)
	assert.Zero(t, c.Pending())
}

func TestFakeCallbackMayReschedule(t *testing.T) {
	c := NewFake(epoch)
	var at []time.Time
	var tick func()
	tick = func() {
		at = append(at, c.Now())
		c.AfterFunc(10*time.Second, tick)
	}
	c.AfterFunc(10*time.Second, tick)

	c.Advance(10 * time.Second)
	c.Advance(10 * time.Second)
	c.Advance(5 * time.Second)
	require.Len(t, at, 2)
	assert.Equal(t, epoch.Add(10*time.Second), at[0])
	assert.Equal(t, epoch.Add(20*time.Second), at[1])
	assert.Equal(t, 1, c.Pending())
}

func TestFakeAfterDeliversTime(t *testing.T) {
	c := NewFake(epoch)
	ch := c.After(2 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	done := make(chan struct{})
	go func() {
		c.WaitForTimers(1)
		c.Advance(2 * time.Second)
		close(done)
	}()
	<-done
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(2*time.Second), got)
	default:
		t.Fatal("did not fire")
	}

	immediate := c.After(0)
	assert.Len(t, immediate, 1)
}
