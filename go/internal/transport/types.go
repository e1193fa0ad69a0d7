// Package transport implements the Transport Adapter (C6): the
// WebSocket boundary between a client channel and the Matchmaker and
// Session Engine, plus the admin/health HTTP surface.
package transport

import (
	"encoding/json"
	"time"

	"github.com/fourthdown/gridlink/go/internal/models"
)

// InboundFrame is the wire envelope a client sends: {"type":...,"data":...}.
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundJoinQueue             = "joinQueue"
	InboundLeaveQueue            = "leaveQueue"
	InboundStartSinglePlayerGame = "startSinglePlayerGame"
	InboundPlayerReady           = "playerReady"
	InboundSubmitPath            = "submitPath"
	InboundGiveUp                = "giveUp"
)

type joinQueueData struct {
	Difficulty models.Difficulty `json:"difficulty"`
}

type startSinglePlayerGameData struct {
	Difficulty models.Difficulty `json:"difficulty"`
}

type submitPathData struct {
	Path []string `json:"path"`
}

// ConnectionConfig tunes the WebSocket connection lifecycle. Mirrors
// the shape of a broadcast gateway's connection config, generalized
// to a single-recipient channel.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultConnectionConfig returns production-shaped defaults.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}
