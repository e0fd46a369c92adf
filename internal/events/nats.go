package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "posts."

// Changed is published on posts.<userID> after a write.
type Changed struct {
	UserID     string    `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Bridge relays change notifications between processes over NATS. A bridge
// without a connection does nothing.
type Bridge struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

// Connect dials url. An empty url, or a failed dial, yields a bridge that
// does nothing so the service keeps running on local notifications.
func Connect(url string) *Bridge {
	if url == "" {
		return &Bridge{}
	}
	nc, err := nats.Connect(url, nats.Name("crosspost"))
	if err != nil {
		slog.Warn("NATS connect failed, using local notifications only", "error", err)
		return &Bridge{}
	}
	return &Bridge{nc: nc}
}

func NewBridge(nc *nats.Conn) *Bridge {
	return &Bridge{nc: nc}
}

func (b *Bridge) Notify(ctx context.Context, userID string) {
	if b.nc == nil {
		return
	}
	data, err := json.Marshal(Changed{UserID: userID, OccurredAt: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := b.nc.Publish(subjectPrefix+userID, data); err != nil {
		slog.Warn("publishing post change failed", "user_id", userID, "error", err)
	}
}

// Forward delivers changes published by other processes to local.
func (b *Bridge) Forward(local Notifier) error {
	if b.nc == nil {
		return nil
	}
	sub, err := b.nc.Subscribe(subjectPrefix+"*", func(m *nats.Msg) {
		var c Changed
		if err := json.Unmarshal(m.Data, &c); err != nil || c.UserID == "" {
			c.UserID = strings.TrimPrefix(m.Subject, subjectPrefix)
		}
		local.Notify(context.Background(), c.UserID)
	})
	if err != nil {
		return fmt.Errorf("subscribing to post changes: %w", err)
	}
	b.sub = sub
	return nil
}

func (b *Bridge) Close() error {
	if b.nc == nil {
		return nil
	}
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	return b.nc.Drain()
}
