package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestQueueNames(t *testing.T) {
	work := WorkQueueNames()
	if len(work) != 2 {
		t.Fatalf("WorkQueueNames len = %d, want 2", len(work))
	}
	if work[0] != "notifications.publish" || work[1] != "revisions.record" {
		t.Fatalf("WorkQueueNames = %v, want [notifications.publish revisions.record]", work)
	}

	dlq := DLQNames()
	if len(dlq) != 2 {
		t.Fatalf("DLQNames len = %d, want 2", len(dlq))
	}
	if dlq[0] != "dlq.notifications.publish" || dlq[1] != "dlq.revisions.record" {
		t.Fatalf("DLQNames = %v", dlq)
	}

	if got := QueueName(Kind("bogus")); got != "" {
		t.Fatalf("QueueName(bogus) = %q, want empty", got)
	}
}

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	valid := func() Message {
		return NewPublishMessage(PublishPayload{Category: "EQUIPMENT", Event: "assigned", Title: "Laptop assigned"})
	}

	tests := []struct {
		name    string
		mutate  func(m *Message)
		wantErr string
	}{
		{name: "valid publish", mutate: func(m *Message) {}},
		{name: "missing id", mutate: func(m *Message) { m.MessageID = " " }, wantErr: "messageId"},
		{name: "unknown kind", mutate: func(m *Message) { m.Kind = "delete" }, wantErr: "invalid kind"},
		{name: "publish without payload", mutate: func(m *Message) { m.Publish = nil }, wantErr: "publish payload is required"},
		{name: "both payloads", mutate: func(m *Message) {
			m.Revision = &RevisionPayload{EntityType: "equipment", EntityID: 1}
		}, wantErr: "not allowed"},
		{name: "revision without changes", mutate: func(m *Message) {
			m.Kind = KindRevision
			m.Publish = nil
			m.Revision = &RevisionPayload{EntityType: "equipment", EntityID: 1}
		}, wantErr: "at least one change"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg := valid()
			tt.mutate(&msg)
			err := msg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewPublishingRoutesByKind(t *testing.T) {
	t.Parallel()

	newValue := "In Use"
	msg := NewRevisionMessage(RevisionPayload{
		EntityType: "equipment",
		EntityID:   42,
		Changes:    []ChangePayload{{Field: "status", NewValue: &newValue}},
	})
	msg.CorrelationID = "cid-1"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	queue, publishing, err := newPublishing(msg, now)
	if err != nil {
		t.Fatalf("newPublishing() error = %v", err)
	}
	if queue != "revisions.record" {
		t.Fatalf("queue = %q, want revisions.record", queue)
	}
	if publishing.DeliveryMode != amqp.Persistent {
		t.Fatalf("DeliveryMode = %d, want persistent", publishing.DeliveryMode)
	}
	if publishing.MessageId != msg.MessageID || publishing.CorrelationId != "cid-1" {
		t.Fatalf("publishing ids = %q/%q", publishing.MessageId, publishing.CorrelationId)
	}
	if publishing.Type != "revision" || !publishing.Timestamp.Equal(now) {
		t.Fatalf("publishing type/timestamp = %q/%v", publishing.Type, publishing.Timestamp)
	}

	var decoded Message
	if err := json.Unmarshal(publishing.Body, &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if decoded.Revision == nil || decoded.Revision.EntityID != 42 || *decoded.Revision.Changes[0].NewValue != "In Use" {
		t.Fatalf("decoded = %+v", decoded)
	}

	if _, _, err := newPublishing(Message{Kind: KindPublish}, now); err == nil {
		t.Fatal("newPublishing() error = nil, want validation error")
	}
}

type fakeAcknowledger struct {
	acked    int
	rejected int
	requeue  bool
	nacked   int
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacked++
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.rejected++
	a.requeue = requeue
	return nil
}

func TestHandleDelivery(t *testing.T) {
	t.Parallel()

	validBody, err := json.Marshal(NewPublishMessage(PublishPayload{Category: "TASK", Event: "created", Title: "Replace toner"}))
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	tests := []struct {
		name         string
		body         []byte
		handlerErr   error
		wantCalled   bool
		wantAcked    int
		wantRejected int
	}{
		{name: "invalid json", body: []byte("{"), wantRejected: 1},
		{name: "invalid envelope", body: []byte(`{"messageId":"m1","kind":"publish"}`), wantRejected: 1},
		{name: "handler failure is dead-lettered", body: validBody, handlerErr: errors.New("db down"), wantCalled: true, wantRejected: 1},
		{name: "success", body: validBody, wantCalled: true, wantAcked: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ack := &fakeAcknowledger{}
			delivery := amqp.Delivery{Acknowledger: ack, Body: tt.body, CorrelationId: "cid-amqp"}

			called := false
			handler := func(ctx context.Context, msg Message) error {
				called = true
				if msg.CorrelationID != "cid-amqp" {
					t.Fatalf("CorrelationID = %q, want cid-amqp", msg.CorrelationID)
				}
				return tt.handlerErr
			}

			consumer := NewRabbitMQConsumer(nil, 1, nil)
			if err := consumer.handleDelivery(context.Background(), delivery, handler); err != nil {
				t.Fatalf("handleDelivery() error = %v", err)
			}

			if called != tt.wantCalled {
				t.Fatalf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if ack.acked != tt.wantAcked || ack.rejected != tt.wantRejected {
				t.Fatalf("acked=%d rejected=%d, want %d/%d", ack.acked, ack.rejected, tt.wantAcked, tt.wantRejected)
			}
			if ack.requeue || ack.nacked != 0 {
				t.Fatal("message must never be requeued")
			}
		})
	}
}

func TestDecodeDelivery(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(Message{
		MessageID:     "m-1",
		CorrelationID: "cid-body",
		Kind:          KindPublish,
		Publish:       &PublishPayload{Category: "NETWORK", Event: "port_down", Title: "Switch port down"},
	})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	msg, reason, err := decodeDelivery(amqp.Delivery{Body: body, CorrelationId: "cid-amqp"})
	if err != nil || reason != "" {
		t.Fatalf("decodeDelivery() = %q, %v; want no error", reason, err)
	}
	if msg.CorrelationID != "cid-body" {
		t.Fatalf("CorrelationID = %q, want body value to win", msg.CorrelationID)
	}

	msg, reason, err = decodeDelivery(amqp.Delivery{Body: []byte("not json"), MessageId: "m-2"})
	if err == nil || reason != "invalid json" {
		t.Fatalf("decodeDelivery() reason = %q, err = %v; want invalid json", reason, err)
	}
	if msg.MessageID != "m-2" {
		t.Fatalf("MessageID = %q, want AMQP message id for logging", msg.MessageID)
	}
}

func TestIntakeTopology(t *testing.T) {
	t.Parallel()

	topology := intakeTopology()
	if len(topology) != 2 {
		t.Fatalf("intakeTopology len = %d, want 2", len(topology))
	}
	for _, q := range topology {
		if q.deadLetter != "dlq."+q.work {
			t.Fatalf("dead letter for %q = %q", q.work, q.deadLetter)
		}
		args := q.workArgs()
		if args["x-dead-letter-exchange"] != dlxExchangeName || args["x-dead-letter-routing-key"] != q.work {
			t.Fatalf("work args for %q = %v", q.work, args)
		}
	}
}
