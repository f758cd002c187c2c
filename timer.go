// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"sync"
	"time"
)

// rtxTimer is a retransmission timer (T1-init, T2-shutdown, T3-rtx, and the
// RECONFIG retransmit timer all use this same shape, RFC 4960 §6.3.2/§8/
// §9.2 and RFC 6525 §5.1.1). It never calls back directly into Association
// state: expiry only posts a closure onto the single-goroutine command loop
// via runOnLoop, so timer callbacks never race with packet handling.
type rtxTimer struct {
	lock sync.Mutex

	name      string
	timer     *time.Timer
	runOnLoop func(func())
	onTimeout func(attempt int)

	interval   time.Duration
	attempt    int
	maxRetrans int
	armed      bool
}

func newRTXTimer(name string, runOnLoop func(func()), maxRetrans int, onTimeout func(attempt int)) *rtxTimer {
	return &rtxTimer{
		name:       name,
		runOnLoop:  runOnLoop,
		maxRetrans: maxRetrans,
		onTimeout:  onTimeout,
	}
}

// start (re)arms the timer at the given interval, resetting the retransmit
// counter. Used when a fresh chunk is queued, not on a retransmission.
func (t *rtxTimer) start(interval time.Duration) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.armed {
		t.timer.Stop()
	}
	t.attempt = 0
	t.interval = interval
	t.armed = true
	t.timer = time.AfterFunc(interval, t.fire)
}

// stop cancels the timer, e.g. once the chunk it guards has been acked.
func (t *rtxTimer) stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.armed {
		t.timer.Stop()
		t.armed = false
	}
}

// fire runs on its own goroutine (time.AfterFunc's contract) and must not
// touch association state directly — it hops onto the command loop.
func (t *rtxTimer) fire() {
	t.lock.Lock()
	if !t.armed {
		t.lock.Unlock()
		return
	}
	t.attempt++
	attempt := t.attempt
	exceeded := t.maxRetrans >= 0 && attempt > t.maxRetrans
	t.lock.Unlock()

	t.runOnLoop(func() {
		t.onTimeout(attempt)
		if exceeded {
			return
		}
		t.lock.Lock()
		defer t.lock.Unlock()
		if !t.armed {
			return
		}
		t.interval *= 2
		if t.interval > rtoMax {
			t.interval = rtoMax
		}
		t.timer = time.AfterFunc(t.interval, t.fire)
	})
}

// running reports whether the timer is currently armed.
func (t *rtxTimer) running() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.armed
}

// isExceeded reports whether the last fire already hit maxRetrans, i.e.
// onTimeout should treat this as a connection-loss event rather than a
// normal retransmit.
func (t *rtxTimer) isExceeded() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.maxRetrans >= 0 && t.attempt > t.maxRetrans
}

// ackTimer is the zero-delay SACK scheduling timer: SACKs here are not
// delayed-ack coalesced — every inbound packet that warrants one gets a
// SACK on the next command-loop tick. Kept as its own type so
// association_inbound.go can express "schedule a SACK soon" without
// reaching for the heavier rtxTimer machinery.
type ackTimer struct {
	lock    sync.Mutex
	pending bool
}

func (a *ackTimer) schedule(runOnLoop func(func()), fire func()) {
	a.lock.Lock()
	if a.pending {
		a.lock.Unlock()
		return
	}
	a.pending = true
	a.lock.Unlock()

	runOnLoop(func() {
		a.lock.Lock()
		a.pending = false
		a.lock.Unlock()
		fire()
	})
}
