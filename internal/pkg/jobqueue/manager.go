// Package jobqueue runs the background maintenance loops of the
// reconciliation core: re-applying ledgered webhook events whose state
// application failed, garbage-collecting expired idempotency records, and
// flushing pending funding counters.
package jobqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pledgekit/PledgeKit/internal/pkg/env"
	"github.com/pledgekit/PledgeKit/internal/pkg/idempotency"
	counter "github.com/pledgekit/PledgeKit/internal/pkg/metrics/counter"
	"github.com/pledgekit/PledgeKit/internal/pkg/payments"
)

const repairBatchSize = 50

// Manager owns the background tickers and their shutdown.
type Manager struct {
	payments *payments.Service
	store    idempotency.Store

	repairTicker *time.Ticker
	gcTicker     *time.Ticker
	flushTicker  *time.Ticker
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

// NewManager creates a manager for the given service and idempotency store.
func NewManager(svc *payments.Service, store idempotency.Store) *Manager {
	return &Manager{
		payments: svc,
		store:    store,
	}
}

// Start launches the background loops. Calling Start on a running manager is
// a no-op; after Stop the manager can be started again.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	// Fresh channel per run; Stop closed the previous one.
	m.stopCh = make(chan struct{})

	m.repairTicker = time.NewTicker(intervalFromEnv("WEBHOOK_REPAIR_INTERVAL_SECONDS", 60))
	m.gcTicker = time.NewTicker(time.Hour)
	m.flushTicker = time.NewTicker(intervalFromEnv("COUNTER_FLUSH_INTERVAL_SECONDS", 30))

	m.wg.Add(3)
	go m.repairLoop()
	go m.gcLoop()
	go m.flushLoop()

	log.Info("jobqueue: background workers started")
}

// Stop halts all loops and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.repairTicker.Stop()
	m.gcTicker.Stop()
	m.flushTicker.Stop()
	m.wg.Wait()
}

// repairLoop re-applies ledgered webhook events that never finished state
// application. The state machine's preconditions make reapplication
// idempotent, so a crash between ledger write and transition is recovered
// here rather than relying on provider redelivery.
func (m *Manager) repairLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.repairTicker.C:
			repaired, err := m.payments.ReprocessPending(context.Background(), repairBatchSize)
			if err != nil {
				log.Errorf("jobqueue: webhook repair pass failed: %v", err)
				continue
			}
			if repaired > 0 {
				log.Infof("jobqueue: re-applied %d webhook event(s)", repaired)
			}
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) gcLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.gcTicker.C:
			removed, err := m.store.DeleteExpired(time.Now())
			if err != nil {
				log.Errorf("jobqueue: idempotency GC failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Infof("jobqueue: removed %d expired idempotency record(s)", removed)
			}
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) flushLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.flushTicker.C:
			if err := counter.FlushAll(); err != nil {
				log.Errorf("jobqueue: counter flush failed: %v", err)
			}
		case <-m.stopCh:
			return
		}
	}
}

func intervalFromEnv(key string, defSeconds int) time.Duration {
	raw := env.GetEnv(key, strconv.Itoa(defSeconds))
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		seconds = defSeconds
	}
	return time.Duration(seconds) * time.Second
}
