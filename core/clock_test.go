package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvanceFiresWaiter(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	ch, _ := c.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("waiter fired before advance")
	default:
	}

	c.Advance(10 * time.Second)
	select {
	case fired := <-ch:
		assert.Equal(t, start.Add(10*time.Second), fired)
	default:
		t.Fatal("waiter did not fire after advance")
	}
}

func TestFakeClockCancelPreventsFire(t *testing.T) {
	start := time.Now()
	c := NewFakeClock(start)
	ch, cancel := c.After(time.Second)
	cancel()
	c.Advance(2 * time.Second)
	select {
	case <-ch:
		t.Fatal("cancelled waiter fired")
	default:
	}
}

func TestFakeClockSet(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	target := start.Add(time.Hour)
	c.Set(target)
	assert.Equal(t, target, c.Now())
}

func TestFakeClockAfterNonPositiveFiresImmediately(t *testing.T) {
	c := NewFakeClock(time.Now())
	ch, _ := c.After(0)
	select {
	case <-ch:
	default:
		t.Fatal("expected immediate fire for non-positive duration")
	}
}
