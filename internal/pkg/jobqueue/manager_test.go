package jobqueue

import (
	"testing"
	"time"

	"github.com/pledgekit/PledgeKit/app/models"
	"github.com/stretchr/testify/assert"
)

type noopStore struct{}

func (noopStore) InsertPlaceholder(rec *models.IdempotencyRecord) (bool, *models.IdempotencyRecord, error) {
	return true, rec, nil
}
func (noopStore) SaveResponse(key string, status int, body []byte, expiresAt time.Time) error {
	return nil
}
func (noopStore) DeleteExpired(now time.Time) (int64, error)            { return 0, nil }

func TestManagerStartStop(t *testing.T) {
	m := NewManager(nil, noopStore{})
	m.Start()
	// Starting twice is a no-op rather than doubling the workers.
	m.Start()
	m.Stop()
	// Stopping twice must not close stopCh again.
	m.Stop()
}

func TestManagerRestart(t *testing.T) {
	m := NewManager(nil, noopStore{})
	m.Start()
	m.Stop()

	m.Start()
	select {
	case <-m.stopCh:
		t.Fatal("restarted manager must run on a fresh stop channel, not the closed one")
	default:
	}
	m.Stop()
}

func TestIntervalFromEnv(t *testing.T) {
	t.Setenv("WEBHOOK_REPAIR_INTERVAL_SECONDS", "5")
	assert.Equal(t, 5*time.Second, intervalFromEnv("WEBHOOK_REPAIR_INTERVAL_SECONDS", 60))

	t.Setenv("WEBHOOK_REPAIR_INTERVAL_SECONDS", "not-a-number")
	assert.Equal(t, 60*time.Second, intervalFromEnv("WEBHOOK_REPAIR_INTERVAL_SECONDS", 60))

	t.Setenv("WEBHOOK_REPAIR_INTERVAL_SECONDS", "-3")
	assert.Equal(t, 60*time.Second, intervalFromEnv("WEBHOOK_REPAIR_INTERVAL_SECONDS", 60))
}
