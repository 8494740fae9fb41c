package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"
)

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Publish(ctx context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

type fakeStream struct {
	subject string
	data    []byte
	calls   int
}

func (f *fakeStream) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.subject = subject
	f.data = data
	f.calls++
	return &jetstream.PubAck{Stream: "CUSTODY_EVENTS", Sequence: uint64(f.calls)}, nil
}

func testEvent() Event {
	return Event{
		Type:        TypeDepositConfirmed,
		ReferenceId: "dep-1",
		UserId:      "user-1",
		Amount:      decimal.RequireFromString("100.5"),
		TxHash:      "0xabc",
		OccurredAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFanout_DeliversToAllSinksDespiteFailures(t *testing.T) {
	failing := &recordingSink{err: errors.New("down")}
	healthy := &recordingSink{}
	fanout := NewFanout(failing, nil, healthy)

	if err := fanout.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("Fanout should swallow sink errors, got %v", err)
	}
	if len(failing.events) != 1 || len(healthy.events) != 1 {
		t.Errorf("Expected both sinks to receive the event, got %d and %d", len(failing.events), len(healthy.events))
	}
}

func TestNATSPublisher_SubjectAndPayload(t *testing.T) {
	stream := &fakeStream{}
	publisher := &NATSPublisher{js: stream, prefix: "custody"}

	if err := publisher.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if stream.subject != "custody.deposits.confirmed" {
		t.Errorf("Unexpected subject %s", stream.subject)
	}

	var decoded Event
	if err := json.Unmarshal(stream.data, &decoded); err != nil {
		t.Fatalf("Payload is not JSON: %v", err)
	}
	if decoded.ReferenceId != "dep-1" || !decoded.Amount.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("Unexpected payload %+v", decoded)
	}
}
