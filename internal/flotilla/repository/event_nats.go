package repository

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/flotillaproject/flotilla/internal/flotilla/configuration"
	"github.com/flotillaproject/flotilla/pkg/api"
)

// NatsEventPublisher mirrors job events onto a NATS subject for external
// consumers. Delivery is fire-and-forget; the Redis stream remains the
// durable record.
type NatsEventPublisher struct {
	connection *nats.Conn
	subject    string
}

func NewNatsEventPublisher(config configuration.NatsConfig) (*NatsEventPublisher, error) {
	connection, err := nats.Connect(strings.Join(config.Servers, ","),
		nats.Name("flotilla"),
		nats.MaxReconnects(-1))
	if err != nil {
		return nil, errors.Wrap(err, "[NatsEventPublisher] error connecting to NATS")
	}
	return &NatsEventPublisher{connection: connection, subject: config.Subject}, nil
}

func (p *NatsEventPublisher) ReportEvents(ctx context.Context, events []*api.JobEvent) error {
	var result *multierror.Error
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error marshalling event for job %s", event.JobId))
			continue
		}
		if err := p.connection.Publish(p.subject, data); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error publishing event for job %s", event.JobId))
		}
	}
	return result.ErrorOrNil()
}

func (p *NatsEventPublisher) Check() error {
	if !p.connection.IsConnected() {
		return errors.New("not connected to NATS")
	}
	return nil
}

func (p *NatsEventPublisher) Close() {
	p.connection.Close()
}

// MultiEventStore fans events out to several stores, collecting failures
// rather than stopping at the first.
type MultiEventStore struct {
	stores []EventStore
}

func NewMultiEventStore(stores ...EventStore) *MultiEventStore {
	return &MultiEventStore{stores: stores}
}

func (s *MultiEventStore) ReportEvents(ctx context.Context, events []*api.JobEvent) error {
	var result *multierror.Error
	for _, store := range s.stores {
		if err := store.ReportEvents(ctx, events); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
