package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/realtime-ai/looper/pkg/looper"
	"github.com/realtime-ai/looper/pkg/pipeline"
)

// Client commands.
const (
	CmdPlay            = "play"
	CmdResume          = "resume"
	CmdStop            = "stop"
	CmdStartRecord     = "start_record"
	CmdStopRecord      = "stop_record"
	CmdSetSaturation   = "set_saturation"
	CmdSetReadPosition = "set_read_position"
	CmdStatus          = "status"
	CmdDiagnostics     = "diagnostics"
)

// Server message types.
const (
	MsgWelcome = "welcome"
	MsgAck     = "ack"
	MsgError   = "error"
	MsgEvent   = "event"
)

var (
	// ErrInvalidMessage is returned for frames that are not a client command.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUnknownCommand is returned for a well-formed message with an unknown type.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingValue is returned when a command needs a value and has none.
	ErrMissingValue = errors.New("missing value")
)

// ClientMessage is a command sent by a control client.
//
//	{"id": "1", "type": "play", "name": "RECORD1.RAW", "loop": true}
//	{"id": "2", "type": "set_saturation", "value": 0.5}
type ClientMessage struct {
	ID    string   `json:"id,omitempty"`
	Type  string   `json:"type"`
	Name  string   `json:"name,omitempty"`
	Loop  *bool    `json:"loop,omitempty"`
	Value *float64 `json:"value,omitempty"`
}

// ServerMessage is everything the server sends to a client.
type ServerMessage struct {
	Type        string              `json:"type"`
	ID          string              `json:"id,omitempty"`
	ClientID    string              `json:"client_id,omitempty"`
	Error       string              `json:"error,omitempty"`
	Status      *StatusPayload      `json:"status,omitempty"`
	Diagnostics *looper.Diagnostics `json:"diagnostics,omitempty"`
	Event       *EventPayload       `json:"event,omitempty"`
}

// StatusPayload is the wire form of looper.Status.
type StatusPayload struct {
	Mode       string  `json:"mode"`
	PlaySlot   string  `json:"play_slot"`
	RecordSlot string  `json:"record_slot"`
	Loop       bool    `json:"loop"`
	TakeID     string  `json:"take_id,omitempty"`
	Pass       int     `json:"pass"`
	DurationMs int64   `json:"duration_ms"`
	Saturation float64 `json:"saturation"`
}

// EventPayload is a bus event forwarded to clients.
type EventPayload struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

type modeChangeData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Trigger string `json:"trigger"`
	TakeID  string `json:"take_id,omitempty"`
}

type loopBoundaryData struct {
	TakeID     string `json:"take_id"`
	Pass       int    `json:"pass"`
	DurationMs int64  `json:"duration_ms"`
	PlaySlot   string `json:"play_slot"`
	RecordSlot string `json:"record_slot"`
}

type storageErrorData struct {
	Name  string `json:"name"`
	Op    string `json:"op"`
	Error string `json:"error"`
}

// ParseClientMessage decodes and validates a client frame.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	switch msg.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	case CmdPlay, CmdResume, CmdStop, CmdStartRecord, CmdStopRecord, CmdStatus, CmdDiagnostics:
	case CmdSetSaturation, CmdSetReadPosition:
		if msg.Value == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingValue, msg.Type)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, msg.Type)
	}
	return &msg, nil
}

// NewStatusPayload converts a recorder status for the wire.
func NewStatusPayload(st looper.Status) *StatusPayload {
	return &StatusPayload{
		Mode:       st.Mode.String(),
		PlaySlot:   st.PlaySlot,
		RecordSlot: st.RecordSlot,
		Loop:       st.Loop,
		TakeID:     st.TakeID,
		Pass:       st.Pass,
		DurationMs: st.DurationMs,
		Saturation: st.Saturation,
	}
}

// NewEventPayload converts a bus event for the wire. Payloads of unknown
// types are forwarded as they are.
func NewEventPayload(evt pipeline.Event) *EventPayload {
	out := &EventPayload{
		Type:      evt.Type.String(),
		Timestamp: evt.Timestamp,
	}

	switch p := evt.Payload.(type) {
	case looper.ModeChange:
		out.Data = modeChangeData{
			From:    p.From.String(),
			To:      p.To.String(),
			Trigger: p.Trigger,
			TakeID:  p.TakeID,
		}
	case looper.LoopBoundary:
		out.Data = loopBoundaryData(p)
	case looper.StorageFailure:
		out.Data = storageErrorData{Name: p.Name, Op: p.Op, Error: p.Err}
	case error:
		out.Data = p.Error()
	default:
		out.Data = p
	}
	return out
}
