package attempt

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Countdown is the advisory, display-only timer of an attempt. It ticks once a
// second and fires onExpire once when the deadline passes. Remaining time is
// always derived from the deadline, so a missed tick never skews it.
type Countdown struct {
	clock    clock.Clock
	deadline time.Time

	ticker *clock.Ticker
	timer  *clock.Timer

	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	mu        sync.Mutex
	stoppedAt time.Time
}

// StartCountdown arms a countdown of limit. onTick receives the remaining time
// after every tick; onExpire runs on its own goroutine at most once.
func StartCountdown(clk clock.Clock, limit time.Duration, onTick func(time.Duration), onExpire func()) *Countdown {
	c := &Countdown{
		clock:    clk,
		deadline: clk.Now().Add(limit),
		ticker:   clk.Ticker(time.Second),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.timer = clk.AfterFunc(limit, func() {
		select {
		case <-c.stop:
			return
		default:
		}
		c.Stop()
		onExpire()
	})

	go func() {
		defer close(c.done)
		for {
			select {
			case <-c.stop:
				return
			case <-c.ticker.C:
				if onTick != nil {
					onTick(c.Remaining())
				}
			}
		}
	}()
	return c
}

// Remaining returns the time left, never negative. Once stopped it stays
// frozen at the value it had when Stop was called.
func (c *Countdown) Remaining() time.Duration {
	now := c.clock.Now()
	c.mu.Lock()
	if !c.stoppedAt.IsZero() {
		now = c.stoppedAt
	}
	c.mu.Unlock()
	left := c.deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Deadline is the instant the countdown reaches zero.
func (c *Countdown) Deadline() time.Time {
	return c.deadline
}

// Stop releases the ticker and the expiry timer. Safe to call more than once
// and from the expiry callback.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stoppedAt = c.clock.Now()
		c.mu.Unlock()
		close(c.stop)
		c.ticker.Stop()
		c.timer.Stop()
	})
}

// Done is closed once the tick goroutine has exited after Stop.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

// FormatClock renders d as m:ss, rounding partial seconds up so that 0:00 is
// only shown once time is really out.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
