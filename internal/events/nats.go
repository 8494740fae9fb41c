package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const defaultSubjectPrefix = "custody"

// streamPublisher is the part of jetstream.JetStream the publisher uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher publishes events to JetStream on <prefix>.<event type>.
type NATSPublisher struct {
	js     streamPublisher
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to url and makes sure the custody stream exists.
func NewNATSPublisher(ctx context.Context, url, prefix string) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}

	nc, err := nats.Connect(url,
		nats.Name("usdc-vault-custody"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "CUSTODY_EVENTS",
		Subjects:  []string{prefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	zap.L().Info("NATS publisher connected", zap.String("url", url), zap.String("prefix", prefix))
	return &NATSPublisher{js: js, conn: nc, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := p.prefix + "." + event.Type
	// The message id lets JetStream drop redeliveries of the same settlement.
	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.Type+":"+event.ReferenceId))
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
