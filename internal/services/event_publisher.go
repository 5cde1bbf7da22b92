package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// TransitionEvent is the wire form of a committed transition, published to
// NATS and pushed to board subscribers.
type TransitionEvent struct {
	Event       string    `json:"event"`
	HistoryID   string    `json:"history_id"`
	DealID      string    `json:"deal_id"`
	FromStage   string    `json:"from_stage,omitempty"`
	ToStage     string    `json:"to_stage"`
	ChangedBy   string    `json:"changed_by"`
	ChangedAt   time.Time `json:"changed_at"`
	Reason      string    `json:"reason,omitempty"`
	Overridden  bool      `json:"overrode_warning"`
	Regression  bool      `json:"regression"`
	Status      string    `json:"status"`
	Probability int       `json:"probability"`
	HealthScore int       `json:"health_score"`
}

const EventStageChanged = "deal.stage_changed"

func NewTransitionEvent(r TransitionResult) TransitionEvent {
	ev := TransitionEvent{
		Event:       EventStageChanged,
		HistoryID:   r.HistoryID,
		DealID:      r.NewState.DealID,
		FromStage:   r.PreviousStageKey,
		ToStage:     r.NewState.CurrentStageKey,
		ChangedBy:   r.Record.ChangedBy,
		ChangedAt:   r.Record.ChangedAt,
		Overridden:  r.Record.OverrodeWarning,
		Regression:  r.Record.Regression,
		Status:      string(r.NewState.Status),
		Probability: r.NewState.Probability,
		HealthScore: r.NewState.HealthScore,
	}
	if r.Record.Reason != nil {
		ev.Reason = *r.Record.Reason
	}
	return ev
}

// streamPublisher is the part of jetstream.JetStream used here.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// EventPublisher publishes transition events to JetStream subjects
// "<prefix>.<to_stage>".
type EventPublisher struct {
	js     streamPublisher
	prefix string
}

func NewEventPublisher(js jetstream.JetStream, subjectPrefix string) *EventPublisher {
	return newEventPublisher(js, subjectPrefix)
}

func newEventPublisher(js streamPublisher, subjectPrefix string) *EventPublisher {
	if subjectPrefix == "" {
		subjectPrefix = "pipeline.transitions"
	}
	return &EventPublisher{js: js, prefix: subjectPrefix}
}

func (p *EventPublisher) Subject(stageKey string) string {
	return p.prefix + "." + stageKey
}

// Publish sends one event, using the history id for JetStream deduplication.
func (p *EventPublisher) Publish(ctx context.Context, r TransitionResult) error {
	ev := NewTransitionEvent(r)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode transition event: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.Subject(ev.ToStage), data, jetstream.WithMsgID(ev.HistoryID)); err != nil {
		return fmt.Errorf("publish transition event: %w", err)
	}
	return nil
}
