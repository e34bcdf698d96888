package tracker

import (
	"errors"
	"testing"
	"time"
)

func TestPingerStartTwiceRunsOneInterval(t *testing.T) {
	sessions := &fakeSessionStore{}
	p := NewPinger(sessions, 1, "test-session", 20*time.Millisecond)

	p.Start()
	p.Start()
	time.Sleep(110 * time.Millisecond)
	p.Stop()

	got := sessions.pingCount()
	// A single 20ms interval ticks roughly 5 times in 110ms; two stacked
	// intervals would roughly double that.
	if got < 3 || got > 7 {
		t.Fatalf("expected one active interval (~5 pings), got %d", got)
	}
}

func TestPingerStopIsIdempotent(t *testing.T) {
	sessions := &fakeSessionStore{}
	p := NewPinger(sessions, 1, "test-session", time.Hour)

	p.Stop() // never started
	p.Start()
	p.Stop()
	p.Stop()

	after := sessions.pingCount()
	time.Sleep(20 * time.Millisecond)
	if sessions.pingCount() != after {
		t.Fatal("pinger kept running after Stop")
	}
}

func TestPingerRestartsAfterStop(t *testing.T) {
	sessions := &fakeSessionStore{}
	p := NewPinger(sessions, 1, "test-session", 10*time.Millisecond)

	p.Start()
	p.Stop()
	p.Start()
	time.Sleep(35 * time.Millisecond)
	p.Stop()

	if sessions.pingCount() == 0 {
		t.Fatal("expected pings after restart")
	}
}

func TestPingNowSkipsFailureSilently(t *testing.T) {
	sessions := &fakeSessionStore{pingErr: errTest}
	p := NewPinger(sessions, 1, "test-session", time.Hour)

	// Must not panic or surface anything; the next tick is the retry.
	p.PingNow()
}

var errTest = errors.New("simulated ping failure")
