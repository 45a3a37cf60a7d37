package relay

import (
	"encoding/json"
	"time"
)

const (
	// EventUpdateLocation is emitted by the producer for every fix.
	EventUpdateLocation = "updateLocation"

	orderLocationPrefix = "order_location_"
)

// OrderLocationEvent is the event name consumers of one order listen on.
func OrderLocationEvent(orderID string) string {
	return orderLocationPrefix + orderID
}

type LocationUpdate struct {
	OrderID   string    `json:"orderId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is the envelope carried by the channel.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func NewMessage(event string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Event: event, Data: data}, nil
}
