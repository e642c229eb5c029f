package websocket

import (
	"encoding/json"
	"time"
)

// Message types pushed to clients
const (
	TypeConnectionEstablished = "CONNECTION_ESTABLISHED"
	TypeSnapshot              = "SNAPSHOT"
	TypeSyncError             = "SYNC_ERROR"
	TypeError                 = "ERROR"
)

// Client message types
const (
	clientRefresh = "refresh"
	clientPong    = "pong"
)

// Envelope wraps every server to client message
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

type clientMessage struct {
	Type string `json:"type"`
}

type errorData struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

func encode(msgType string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Timestamp: time.Now().Unix(), Data: data})
}
