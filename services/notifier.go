package services

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go"

	"ticket-gate/models"
	"ticket-gate/utils"
)

// Notifier delivers best-effort messages to members. Callers treat delivery
// failure as a logged event, never as a reason to roll back admission or
// reservation state.
type Notifier interface {
	Notify(ctx context.Context, memberID string, notification models.Notification) error
}

// PubNubNotifier publishes to the member's personal channel. Calls go through
// a circuit breaker so a degraded PubNub cannot slow the admission path.
type PubNubNotifier struct {
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("pubnub-notify"),
	}
}

func (n *PubNubNotifier) Notify(ctx context.Context, memberID string, notification models.Notification) error {
	channel := fmt.Sprintf("user-%s", memberID)

	return n.breaker.Do(ctx, func() error {
		_, _, err := n.pubnub.Publish().
			Channel(channel).
			Message(map[string]any{
				"type":    notification.Type,
				"title":   notification.Title,
				"content": notification.Content,
				"link":    notification.Link,
			}).
			Execute()
		return err
	})
}
