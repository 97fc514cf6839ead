// Package audit шлет события жизненного цикла во внешний append-only
// приемник. Отправка fire-and-forget: сбой приемника не откатывает
// и не блокирует операцию, породившую событие
package audit

import (
	"time"

	"go.uber.org/zap"
)

type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionRecordSale Action = "record_sale"
	ActionClose      Action = "close_month"
	ActionReopen     Action = "reopen_month"
)

type Event struct {
	ActorID     string    `json:"actor_id"`
	ActorName   string    `json:"actor_name"`
	Action      Action    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id,omitempty"`
	EntityLabel string    `json:"entity_label"`
	Detail      string    `json:"detail"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// Sink принимает события аудита. Реализации не должны блокировать
type Sink interface {
	Notify(event Event)
}

// ZapSink пишет одну структурированную запись лога на событие
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Notify(event Event) {
	s.logger.Info("audit",
		zap.String("actor_id", event.ActorID),
		zap.String("actor_name", event.ActorName),
		zap.String("action", string(event.Action)),
		zap.String("entity_type", event.EntityType),
		zap.String("entity_id", event.EntityID),
		zap.String("entity_label", event.EntityLabel),
		zap.String("detail", event.Detail),
		zap.String("status", event.Status),
		zap.Time("timestamp", event.Timestamp),
	)
}

// Notifier навешивает на приемник значения по умолчанию, вызывающие заполняют только то что знают
type Notifier struct {
	sink Sink
}

func NewNotifier(sink Sink) *Notifier {
	return &Notifier{sink: sink}
}

func (n *Notifier) Emit(event Event) {
	if n == nil || n.sink == nil {
		return
	}
	if event.EntityType == "" {
		event.EntityType = "goal"
	}
	if event.Status == "" {
		event.Status = "success"
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	n.sink.Notify(event)
}
