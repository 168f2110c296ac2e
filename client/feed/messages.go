package feed

import (
	"encoding/json"
	"fmt"

	"github.com/linluma/chartsync/client/subscriber"
	"github.com/linluma/chartsync/shared/models"
)

// Server message types
const (
	TypePriceUpdate      = "price_update"
	TypeConnectionStatus = "connection_status"
	TypeSubscribed       = "subscribed"
	TypeUnsubscribed     = "unsubscribed"
)

// ClientMessage is sent to the server to change the subscription set
type ClientMessage struct {
	Action   subscriber.Action `json:"action"`
	Symbol   string            `json:"symbol"`
	Interval string            `json:"interval"`
}

// ServerMessage is the envelope of every server frame. Which fields are set depends on Type
type ServerMessage struct {
	Type     string         `json:"type"`
	Symbol   string         `json:"symbol,omitempty"`
	Interval string         `json:"interval,omitempty"`
	Candle   *CandlePayload `json:"candle,omitempty"`
	IsClosed bool           `json:"is_closed,omitempty"`
	Status   string         `json:"status,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// CandlePayload is the bar carried by a price_update
type CandlePayload struct {
	Time   int64   `json:"time"` // unix seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// decodeServerMessage parses a raw frame and checks the fields its type requires
func decodeServerMessage(raw []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ServerMessage{}, fmt.Errorf("failed to unmarshal server message: %w", err)
	}

	switch msg.Type {
	case TypePriceUpdate:
		if msg.Symbol == "" || msg.Candle == nil {
			return ServerMessage{}, fmt.Errorf("price_update missing symbol or candle")
		}
		if _, err := models.ParseInterval(msg.Interval); err != nil {
			return ServerMessage{}, fmt.Errorf("price_update for %s: %w", msg.Symbol, err)
		}
	case TypeConnectionStatus, TypeSubscribed, TypeUnsubscribed:
	default:
		return ServerMessage{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
	return msg, nil
}

// Tick converts a price_update into the domain tick
func (m ServerMessage) Tick() models.Tick {
	return models.Tick{
		Symbol:   m.Symbol,
		Interval: models.Interval(m.Interval),
		Bar: models.Bar{
			Time:   m.Candle.Time,
			Open:   m.Candle.Open,
			High:   m.Candle.High,
			Low:    m.Candle.Low,
			Close:  m.Candle.Close,
			Volume: m.Candle.Volume,
		},
		Closed: m.IsClosed,
	}
}
