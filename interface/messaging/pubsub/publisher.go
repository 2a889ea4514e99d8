package pubsub

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/airbusgeo/geocube-tilefinder/service"
	"github.com/airbusgeo/geocube-tilefinder/service/log"
)

// Publisher implements messaging.Publisher on a Pub/Sub topic
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	// Attributes added to every message
	Attributes map[string]string
	NbTries    int
}

// NewPublisher creates a publisher on the topic of the project.
// If the environment variable PUBSUB_EMULATOR_HOST is defined, the emulator is used.
func NewPublisher(ctx context.Context, project, topic string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewPublisher.NewClient: %w", err)
	}
	t := client.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("NewPublisher.Exists: %w", err)
	}
	if !ok {
		client.Close()
		return nil, service.ErrNotFound{Resource: "topic " + topic}
	}
	return &Publisher{client: client, topic: t, NbTries: 3}, nil
}

// Publish implements messaging.Publisher
func (p *Publisher) Publish(ctx context.Context, data ...[]byte) error {
	results := make([]*pubsub.PublishResult, len(data))
	for i, d := range data {
		results[i] = p.topic.Publish(ctx, &pubsub.Message{Data: d, Attributes: p.Attributes})
	}

	var errs error
	nbTries := max(p.NbTries, 1)
	for i, res := range results {
		err := service.Retriable(ctx, func() error {
			if res == nil {
				res = p.topic.Publish(ctx, &pubsub.Message{Data: data[i], Attributes: p.Attributes})
			}
			id, err := res.Get(ctx)
			if err != nil {
				res = nil
				return service.MakeTemporary(fmt.Errorf("Publish: %w", err))
			}
			log.Logger(ctx).Sugar().Debugf("message %s published on %s", id, p.topic.ID())
			return nil
		}, time.Second, nbTries)
		errs = service.MergeErrors(true, errs, err)
	}
	return errs
}

// Close flushes the pending messages and closes the connection
func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
