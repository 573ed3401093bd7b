package websocket

import "time"

// Типы событий, транслируемых клиентам
const (
	// EventTrade - исполненный рыночный ордер
	EventTrade = "trade"

	// EventTransfer - отправленный межбиржевой перевод
	EventTransfer = "transfer"

	// EventObserverRestart - супервизор перезапустил наблюдателя
	EventObserverRestart = "observer_restart"

	// EventDeal - изменение лучшего арбитражного маршрута
	EventDeal = "deal"
)

// EventMessage - единый конверт событий движка.
// Payload зависит от типа: ордер, перевод, карта маршрута.
type EventMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEventMessage создает конверт с текущим временем
func NewEventMessage(event string, payload interface{}) *EventMessage {
	return &EventMessage{
		Type:      event,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
