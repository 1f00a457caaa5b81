package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeMasking is sent after a text was masked
	EventTypeMasking EventType = "masking"
	// EventTypeRestore is sent after a text was restored
	EventTypeRestore EventType = "restore"
	// EventTypeSession is sent when a masking session starts or ends
	EventTypeSession EventType = "session"
	// EventTypeConnection represents dashboard connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// MaskingEvent summarises one masking call. It carries counts only.
type MaskingEvent struct {
	SessionID         string            `json:"session_id,omitempty"`
	Findings          []privacy.Finding `json:"findings"`
	TotalPlaceholders int               `json:"total_placeholders"`
	Degraded          []string          `json:"degraded,omitempty"`
	TextLength        int               `json:"text_length"`
	ProcessingMS      float64           `json:"processing_ms"`
}

// RestoreEvent summarises one restoration call
type RestoreEvent struct {
	SessionID    string  `json:"session_id,omitempty"`
	TextLength   int     `json:"text_length"`
	ProcessingMS float64 `json:"processing_ms"`
}

// SessionEvent reports a session lifecycle change
type SessionEvent struct {
	Action    string `json:"action"` // created, closed, expired, capacity
	SessionID string `json:"session_id"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // connected, disconnected
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type      string               `json:"type"`
	Subscribe *SubscriptionRequest `json:"subscribe,omitempty"`
}

// SubscriptionRequest narrows the events a client receives. An empty
// Events list means every type; Categories keeps only masking events that
// found at least one of the listed categories.
type SubscriptionRequest struct {
	Events     []EventType `json:"events,omitempty"`
	Categories []string    `json:"categories,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	subscription *SubscriptionRequest
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections   int64     `json:"total_connections"`
	ActiveConnections  int64     `json:"active_connections"`
	TotalMessages      int64     `json:"total_messages"`
	TotalBroadcasts    int64     `json:"total_broadcasts"`
	DroppedEvents      int64     `json:"dropped_events"`
	LastConnectionTime time.Time `json:"last_connection_time"`
	LastBroadcastTime  time.Time `json:"last_broadcast_time"`
}
