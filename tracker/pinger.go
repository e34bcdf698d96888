package tracker

import (
	"context"
	"log"
	"sync"
	"time"
)

const pingTimeout = 10 * time.Second

// Pinger periodically refreshes a session row's last_ping so the
// dashboard can approximate live viewers as "rows pinged within the last
// two minutes". Start and Stop are idempotent; Start while running
// replaces the existing interval rather than stacking a second one.
type Pinger struct {
	store     SessionStore
	recordID  int64
	sessionID string
	interval  time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewPinger(store SessionStore, recordID int64, sessionID string, interval time.Duration) *Pinger {
	return &Pinger{
		store:     store,
		recordID:  recordID,
		sessionID: sessionID,
		interval:  interval,
	}
}

func (p *Pinger) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.wg.Add(1)
	go p.loop(stopCh)
}

func (p *Pinger) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Pinger) stopLocked() {
	if p.stopCh == nil {
		return
	}
	close(p.stopCh)
	p.stopCh = nil
	p.wg.Wait()
}

func (p *Pinger) loop(stopCh chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.PingNow()
		case <-stopCh:
			return
		}
	}
}

// PingNow updates last_ping immediately. A failed ping is logged and
// skipped; the next tick is the retry.
func (p *Pinger) PingNow() {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := p.store.TouchPing(ctx, p.recordID); err != nil {
		log.Printf("tracker: ping failed for session %s: %v", p.sessionID, err)
	}
}
