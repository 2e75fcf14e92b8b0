package realtime

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// DefaultFanoutChannel is the Redis pub/sub channel shared by all instances.
const DefaultFanoutChannel = "pledgekit:realtime"

// EnableRedisFanout routes broadcasts through a Redis pub/sub channel so that
// every deployed instance delivers them to its own local registry. This is
// the upgrade path for multi-instance deployments; without it the hub only
// reaches clients connected to this process.
func (h *Hub) EnableRedisFanout(ctx context.Context, client *redis.Client, channel string) {
	if channel == "" {
		channel = DefaultFanoutChannel
	}

	h.publish = func(evt Event) bool {
		payload, err := json.Marshal(evt)
		if err != nil {
			log.Errorf("realtime: marshal event for fanout: %v", err)
			return false
		}
		if err := client.Publish(ctx, channel, payload).Err(); err != nil {
			// Fall back to local-only delivery rather than dropping the event.
			log.Errorf("realtime: publish to %s failed, delivering locally: %v", channel, err)
			return false
		}
		return true
	}

	sub := client.Subscribe(ctx, channel)
	go func() {
		for msg := range sub.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Errorf("realtime: drop malformed fanout message: %v", err)
				continue
			}
			h.fanout(evt)
		}
	}()
}
