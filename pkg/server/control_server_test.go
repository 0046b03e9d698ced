package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/looper/pkg/audio"
	"github.com/realtime-ai/looper/pkg/looper"
	"github.com/realtime-ai/looper/pkg/pipeline"
	"github.com/realtime-ai/looper/pkg/storage"
)

// mockController records every call and lets tests override behavior.
type mockController struct {
	mu sync.Mutex

	PlayFunc        func(name string, loop bool) error
	StartRecordFunc func() error

	calls      []string
	playName   string
	playLoop   bool
	position   float64
	saturation float64
	status     looper.Status
}

func newMockController() *mockController {
	return &mockController{status: looper.Status{Mode: looper.Stopped, PlaySlot: looper.SlotA, RecordSlot: looper.SlotA}}
}

func (m *mockController) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockController) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockController) Play(_ context.Context, name string, loop bool) error {
	m.record(CmdPlay)
	m.mu.Lock()
	m.playName, m.playLoop = name, loop
	m.status.Mode = looper.PlayingBack
	m.mu.Unlock()
	if m.PlayFunc != nil {
		return m.PlayFunc(name, loop)
	}
	return nil
}

func (m *mockController) Resume(context.Context) error {
	m.record(CmdResume)
	return nil
}

func (m *mockController) Stop(context.Context) error {
	m.record(CmdStop)
	m.mu.Lock()
	m.status.Mode = looper.Stopped
	m.mu.Unlock()
	return nil
}

func (m *mockController) StartRecord(context.Context) error {
	m.record(CmdStartRecord)
	if m.StartRecordFunc != nil {
		return m.StartRecordFunc()
	}
	return nil
}

func (m *mockController) StopRecord(context.Context) error {
	m.record(CmdStopRecord)
	return nil
}

func (m *mockController) SetReadPosition(_ context.Context, f float64) error {
	m.record(CmdSetReadPosition)
	m.mu.Lock()
	m.position = f
	m.mu.Unlock()
	return nil
}

func (m *mockController) SetSaturation(v float64) {
	m.record(CmdSetSaturation)
	m.mu.Lock()
	m.saturation = v
	m.status.Saturation = v
	m.mu.Unlock()
}

func (m *mockController) Status() looper.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockController) Diagnostics() looper.Diagnostics {
	return looper.Diagnostics{Ticks: 42}
}

func startServer(t *testing.T, cfg *Config, ctrl Controller, bus pipeline.Bus) *ControlServer {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Addr = "127.0.0.1:0"

	s := NewControlServer(cfg, ctrl, bus)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func dial(t *testing.T, s *ControlServer) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+s.config.Path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := readMessage(t, conn)
	require.Equal(t, MsgWelcome, welcome.Type)
	require.NotEmpty(t, welcome.ClientID)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg string) ServerMessage {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	return readMessage(t, conn)
}

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"play", `{"type":"play","name":"RECORD1.RAW","loop":false}`, nil},
		{"status", `{"type":"status"}`, nil},
		{"saturation", `{"type":"set_saturation","value":0.5}`, nil},
		{"not json", `play`, ErrInvalidMessage},
		{"missing type", `{"name":"x"}`, ErrInvalidMessage},
		{"unknown", `{"type":"rewind"}`, ErrUnknownCommand},
		{"position without value", `{"type":"set_read_position"}`, ErrMissingValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseClientMessage([]byte(tt.data))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, msg)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, msg.Type)
		})
	}
}

func TestControlServer_Commands(t *testing.T) {
	ctrl := newMockController()
	s := startServer(t, nil, ctrl, nil)
	conn := dial(t, s)

	t.Run("play", func(t *testing.T) {
		reply := send(t, conn, `{"id":"1","type":"play","name":"RECORD2.RAW","loop":false}`)
		assert.Equal(t, MsgAck, reply.Type)
		assert.Equal(t, "1", reply.ID)
		require.NotNil(t, reply.Status)
		assert.Equal(t, "PlayingBack", reply.Status.Mode)

		ctrl.mu.Lock()
		assert.Equal(t, "RECORD2.RAW", ctrl.playName)
		assert.False(t, ctrl.playLoop)
		ctrl.mu.Unlock()
	})

	t.Run("play defaults to looping the current slot", func(t *testing.T) {
		reply := send(t, conn, `{"id":"2","type":"play"}`)
		assert.Equal(t, MsgAck, reply.Type)

		ctrl.mu.Lock()
		assert.Equal(t, looper.SlotA, ctrl.playName)
		assert.True(t, ctrl.playLoop)
		ctrl.mu.Unlock()
	})

	t.Run("values", func(t *testing.T) {
		send(t, conn, `{"type":"set_saturation","value":0.25}`)
		send(t, conn, `{"type":"set_read_position","value":0.5}`)

		ctrl.mu.Lock()
		assert.Equal(t, 0.25, ctrl.saturation)
		assert.Equal(t, 0.5, ctrl.position)
		ctrl.mu.Unlock()
	})

	t.Run("diagnostics", func(t *testing.T) {
		reply := send(t, conn, `{"id":"d","type":"diagnostics"}`)
		require.NotNil(t, reply.Diagnostics)
		assert.Equal(t, uint64(42), reply.Diagnostics.Ticks)
	})

	t.Run("invalid frame", func(t *testing.T) {
		reply := send(t, conn, `{"type":"rewind"}`)
		assert.Equal(t, MsgError, reply.Type)
		assert.Contains(t, reply.Error, "unknown command")
	})

	assert.Equal(t, []string{CmdPlay, CmdPlay, CmdSetSaturation, CmdSetReadPosition}, ctrl.Calls())
}

func TestControlServer_CommandError(t *testing.T) {
	ctrl := newMockController()
	ctrl.StartRecordFunc = func() error { return looper.ErrStorageOpen }
	s := startServer(t, nil, ctrl, nil)
	conn := dial(t, s)

	reply := send(t, conn, `{"id":"r","type":"start_record"}`)
	assert.Equal(t, MsgError, reply.Type)
	assert.Equal(t, "r", reply.ID)
	assert.Equal(t, looper.ErrStorageOpen.Error(), reply.Error)
	require.NotNil(t, reply.Status)
	assert.Equal(t, "Stopped", reply.Status.Mode)
}

func TestControlServer_ForwardsEvents(t *testing.T) {
	bus := pipeline.NewEventBus()
	s := startServer(t, nil, newMockController(), bus)
	conn := dial(t, s)

	bus.Publish(pipeline.Event{
		Type: pipeline.EventModeChanged,
		Payload: looper.ModeChange{
			From:    looper.Stopped,
			To:      looper.RecordingInitial,
			Trigger: "start_record",
		},
	})

	msg := readMessage(t, conn)
	assert.Equal(t, MsgEvent, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, "mode_changed", msg.Event.Type)
	assert.False(t, msg.Event.Timestamp.IsZero())

	data, ok := msg.Event.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Stopped", data["from"])
	assert.Equal(t, "RecordingInitial", data["to"])
}

func TestControlServer_Auth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthToken = "secret"
	s := startServer(t, cfg, newMockController(), nil)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+cfg.Path, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"Authorization": []string{"Bearer secret"}}
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+cfg.Path, header)
	require.NoError(t, err)
	conn.Close()
}

func TestControlServer_MaxClients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClients = 1
	s := startServer(t, cfg, newMockController(), nil)
	dial(t, s)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+cfg.Path, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestControlServer_StatusEndpoint(t *testing.T) {
	s := startServer(t, nil, newMockController(), nil)

	resp, err := http.Get("http://" + s.Addr() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var st StatusPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "Stopped", st.Mode)
	assert.Equal(t, looper.SlotA, st.PlaySlot)
}

func TestControlServer_ExportWAV(t *testing.T) {
	pool := audio.NewFixedPool(64)
	backend := storage.NewMemoryBackend()
	backend.Put(looper.SlotA, audio.EncodeSamples(make([]int16, audio.BlockSamples*4)))

	rec := looper.NewRecorder(pool, backend, looper.NewMockPort(pool))
	runner := looper.NewRunner(rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	s := startServer(t, nil, runner, nil)

	resp, err := http.Get("http://" + s.Addr() + "/loop.wav")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Greater(t, len(body), audio.BlockBytes*4)
	assert.Equal(t, "RIFF", string(body[:4]))
	assert.Equal(t, "WAVE", string(body[8:12]))
}

func TestControlServer_ExportUnsupported(t *testing.T) {
	s := startServer(t, nil, newMockController(), nil)

	resp, err := http.Get("http://" + s.Addr() + "/loop.wav")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestNewEventPayload(t *testing.T) {
	ts := time.Now()

	p := NewEventPayload(pipeline.Event{
		Type:      pipeline.EventStorageError,
		Timestamp: ts,
		Payload:   looper.StorageFailure{Name: looper.SlotB, Op: "write", Err: "disk full"},
	})
	assert.Equal(t, "storage_error", p.Type)
	assert.Equal(t, storageErrorData{Name: looper.SlotB, Op: "write", Error: "disk full"}, p.Data)

	p = NewEventPayload(pipeline.Event{Type: pipeline.EventError, Payload: errors.New("boom")})
	assert.Equal(t, "boom", p.Data)
}
