package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fourthdown/gridlink/go/internal/models"
)

// dispatch parses one inbound frame from c and routes it to the
// Matchmaker or Session Engine. Malformed frames and unknown channels
// are logged and dropped rather than closing the connection — the
// ClientProtocol failure class never tears down the socket.
func (m *ConnectionManager) dispatch(c *Connection, raw []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Warn().Err(err).Str("channel_id", c.ChannelID).Msg("malformed inbound frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch frame.Type {
	case InboundJoinQueue:
		var data joinQueueData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			log.Warn().Err(err).Str("channel_id", c.ChannelID).Msg("malformed joinQueue frame")
			return
		}
		if _, ok := m.cfg.Get(data.Difficulty); !ok {
			log.Warn().Str("channel_id", c.ChannelID).Str("difficulty", string(data.Difficulty)).Msg("joinQueue with unknown difficulty")
			return
		}
		if err := m.matchmaker.Enqueue(ctx, c.ChannelID, c.UserID, data.Difficulty); err != nil {
			log.Debug().Err(err).Str("channel_id", c.ChannelID).Msg("joinQueue rejected")
		}

	case InboundLeaveQueue:
		m.matchmaker.Dequeue(c.ChannelID)

	case InboundStartSinglePlayerGame:
		var data startSinglePlayerGameData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			log.Warn().Err(err).Str("channel_id", c.ChannelID).Msg("malformed startSinglePlayerGame frame")
			return
		}
		m.startSingle(ctx, c, data.Difficulty)

	case InboundPlayerReady:
		m.engine.Ready(c.ChannelID)

	case InboundSubmitPath:
		var data submitPathData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			log.Warn().Err(err).Str("channel_id", c.ChannelID).Msg("malformed submitPath frame")
			return
		}
		m.engine.SubmitPath(ctx, c.ChannelID, data.Path)

	case InboundGiveUp:
		m.engine.GiveUp(c.ChannelID)

	default:
		log.Debug().Str("channel_id", c.ChannelID).Str("type", frame.Type).Msg("unknown inbound frame type")
	}
}

// startSingle resolves a start/end pair for difficulty and hands the
// channel straight to the Session Engine, outside the matchmaking
// queue.
func (m *ConnectionManager) startSingle(ctx context.Context, c *Connection, difficulty models.Difficulty) {
	params, ok := m.cfg.Get(difficulty)
	if !ok {
		log.Warn().Str("channel_id", c.ChannelID).Str("difficulty", string(difficulty)).Msg("startSinglePlayerGame with unknown difficulty")
		return
	}

	startID, endID, ok := m.picker.PickEndpoints(params)
	if !ok {
		log.Warn().Str("channel_id", c.ChannelID).Msg("endpoint picker exhausted for single-player game")
		return
	}

	if err := m.engine.CreateSingle(ctx, c.ChannelID, c.UserID, difficulty, startID, endID); err != nil {
		log.Error().Err(err).Str("channel_id", c.ChannelID).Msg("failed to create single-player session")
	}
}
