package models

import (
	"fmt"
	"strings"
)

// SubscriptionKey identifies one live stream
type SubscriptionKey struct {
	Symbol   string
	Interval Interval
}

// String serializes the key as "SYMBOL@interval"
func (k SubscriptionKey) String() string {
	return k.Symbol + "@" + string(k.Interval)
}

// ParseSubscriptionKey is the inverse of SubscriptionKey.String
func ParseSubscriptionKey(s string) (SubscriptionKey, error) {
	symbol, interval, ok := strings.Cut(s, "@")
	if !ok || symbol == "" {
		return SubscriptionKey{}, fmt.Errorf("invalid subscription key %q", s)
	}
	iv, err := ParseInterval(interval)
	if err != nil {
		return SubscriptionKey{}, err
	}
	return SubscriptionKey{Symbol: symbol, Interval: iv}, nil
}

// ConnectionState represents the lifecycle of the shared feed connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Banner returns the user-facing status line, empty when connected
func (s ConnectionState) Banner() string {
	switch s {
	case StateConnecting:
		return "Connecting to market data..."
	case StateReconnecting:
		return "Connection lost -- reconnecting..."
	case StateDisconnected:
		return "Market data disconnected. Check your connection."
	default:
		return ""
	}
}
