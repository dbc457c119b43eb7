// Package notify hands user-facing events to the bot gateway through a
// Redis list. This service holds no bot token; whatever fronts the
// users consumes the list and does the delivery.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"helvetia/internal/pkg/errors"
	"helvetia/internal/pkg/logger"
)

const queueKey = "helvetia:notifications"

// Event kinds the gateway understands.
const (
	KindPlanActivated = "plan_activated"
)

// Event is one message for a user, serialized onto the list as JSON.
type Event struct {
	UserID int64     `json:"user_id"`
	Kind   string    `json:"kind"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

type Notifier struct {
	rdb *redis.Client
	log *logger.Logger
}

func NewNotifier(rdb *redis.Client, log *logger.Logger) *Notifier {
	return &Notifier{
		rdb: rdb,
		log: log.WithComponent("notify"),
	}
}

// PlanActivated queues the post-payment confirmation for the user.
func (n *Notifier) PlanActivated(ctx context.Context, userID int64) error {
	return n.push(ctx, Event{
		UserID: userID,
		Kind:   KindPlanActivated,
		Text:   "💎 Подписка активирована!\nСпасибо за оплату. Теперь обработки без лимитов.",
		SentAt: time.Now().UTC(),
	})
}

func (n *Notifier) push(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode notification")
	}
	if err := n.rdb.LPush(ctx, queueKey, payload).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "push notification")
	}
	n.log.Debug("notification queued", "user_id", ev.UserID, "kind", ev.Kind)
	return nil
}
