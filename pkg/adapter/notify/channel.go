// Package notify provides the in-process notification channel of catalog changes.
package notify

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

// subscriberBuffer is the number of undelivered changes kept per subscriber.
// A full buffer drops further changes; a pending one already triggers a reload.
const subscriberBuffer = 16

// Channel delivers catalog changes to subscribers of the same scope
type Channel struct {
	pubSub *gochannel.GoChannel
}

var _ interfaces.Notifier = &Channel{}

func New() *Channel {
	return &Channel{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: subscriberBuffer},
			watermill.NewStdLogger(false, false),
		),
	}
}

func topic(scope types.Scope) string {
	return "catalog." + scope.String()
}

func (x *Channel) Publish(ctx context.Context, change session.CatalogChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal catalog change")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := x.pubSub.Publish(topic(change.Scope), msg); err != nil {
		return goerr.Wrap(err, "failed to publish catalog change",
			goerr.TV(errs.ScopeKey, change.Scope),
			goerr.T(errs.TagInternal),
		)
	}
	return nil
}

func (x *Channel) Subscribe(ctx context.Context, scope types.Scope) (<-chan session.CatalogChange, error) {
	messages, err := x.pubSub.Subscribe(ctx, topic(scope))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to subscribe catalog changes", goerr.TV(errs.ScopeKey, scope))
	}

	out := make(chan session.CatalogChange, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range messages {
			var change session.CatalogChange
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				logging.From(ctx).Warn("invalid catalog change", "error", err)
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- change:
			default:
				logging.From(ctx).Debug("catalog change dropped, subscriber is busy", "scope", scope)
			}
		}
	}()

	return out, nil
}

func (x *Channel) Close() error {
	if err := x.pubSub.Close(); err != nil {
		return goerr.Wrap(err, "failed to close notification channel")
	}
	return nil
}
