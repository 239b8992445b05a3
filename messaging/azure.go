package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/ledger/config"
	"example.com/backstage/services/ledger/domain"
)

// EventNotification is the message published for each processed event so
// downstream consumers can react without polling the event store.
type EventNotification struct {
	EventID       int64     `json:"event_id"`
	AccountID     string    `json:"account_id"`
	EventType     string    `json:"event_type"`
	Amount        *float64  `json:"amount,omitempty"`
	EventDate     time.Time `json:"event_date"`
	CorrelationID string    `json:"correlation_id"`
	UserID        string    `json:"user_id"`
}

// Publisher sends processed-event notifications to Azure Service Bus. A nil
// publisher drops them; the in-process projection channel, not the bus, is
// what drives the read model.
type Publisher struct {
	client *azservicebus.Client
	sender *azservicebus.Sender
}

// NewPublisher creates a new publisher, or nil when no connection string is
// configured.
func NewPublisher(cfg config.Config) (*Publisher, error) {
	if cfg.AzureQueueConnStr == "" {
		return nil, nil
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.AzureQueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create service bus client")
	}

	sender, err := client.NewSender(cfg.AzureProcessedQueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create service bus sender")
	}

	return &Publisher{client: client, sender: sender}, nil
}

// PublishProcessed sends a notification for an event that reached PROCESSED.
func (p *Publisher) PublishProcessed(ctx context.Context, event domain.Event) error {
	if p == nil {
		return nil
	}

	notification := EventNotification{
		EventID:       event.ID,
		AccountID:     event.AccountID,
		EventType:     event.Type,
		Amount:        event.Amount,
		EventDate:     event.EventDate,
		CorrelationID: event.Metadata.CorrelationID,
		UserID:        event.Metadata.UserID,
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification")
	}

	err = p.sender.SendMessage(ctx, &azservicebus.Message{Body: body}, nil)
	if err != nil {
		return errors.Wrap(err, "failed to send notification")
	}

	log.Debug().
		Int64("eventID", event.ID).
		Str("accountID", event.AccountID).
		Msg("Processed-event notification published")

	return nil
}

// Close releases the sender and client.
func (p *Publisher) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.sender.Close(ctx); err != nil {
		return err
	}
	return p.client.Close(ctx)
}
