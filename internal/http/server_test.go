package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/controller"
	"github.com/fyrsmithlabs/sketchd/internal/events"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
	"github.com/fyrsmithlabs/sketchd/internal/oracle"
	"github.com/fyrsmithlabs/sketchd/internal/session"
	"github.com/fyrsmithlabs/sketchd/internal/store"
	"github.com/fyrsmithlabs/sketchd/internal/validator"
)

const squareReply = `{"strokes": [[[0.4,0.4],[0.6,0.4],[0.6,0.6],[0.4,0.6],[0.4,0.4]]],
 "labels": {"stroke_0": "square"}, "assistant_message": "Drew a square.", "done": true}`

func newTestManager(t *testing.T, pub events.Publisher) *session.Manager {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	val, err := validator.New(validator.DefaultConfig())
	require.NoError(t, err)
	llm := oracle.NewFakeLLM()
	llm.Fallback = &oracle.FakeReply{Text: squareReply}
	orc := oracle.New(llm, oracle.DefaultConfig())
	if pub == nil {
		pub = events.Nop{}
	}

	factory := func(id string, mem *memory.Memory) (*controller.Controller, error) {
		return controller.New(mem, orc, val,
			controller.WithSessionID(id),
			controller.WithConfig(&controller.Config{RepairBudget: 1, PreviewMode: true}),
			controller.WithEvents(pub),
		)
	}
	m, err := session.NewManager(st, factory, 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func setupTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s, err := NewServer(newTestManager(t, nil), zap.NewNop(), &Config{Version: "test"}, opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode[SessionResponse](t, rec).ID
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, zap.NewNop(), nil)
	assert.ErrorContains(t, err, "session manager")

	_, err = NewServer(newTestManager(t, nil), nil, nil)
	assert.ErrorContains(t, err, "logger is required")

	s, err := NewServer(newTestManager(t, nil), zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Equal(t, 8642, s.config.Port)
}

func TestHandleHealth(t *testing.T) {
	s := setupTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.False(t, resp.Events)
}

func TestHandleMetrics(t *testing.T) {
	s := setupTestServer(t)
	createSession(t, s)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sketchd_sessions_operations_total")
}

func TestSessionLifecycle(t *testing.T) {
	s := setupTestServer(t)
	id := createSession(t, s)

	rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/instructions", `{"instruction":"draw a square"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[controller.Outcome](t, rec)
	assert.Equal(t, "Drew a square.", out.Message)
	require.Len(t, out.Stages, 1)
	assert.Equal(t, memory.StatePreview, out.Stages[0].StrokeState)

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[StateResponse](t, rec)
	require.Len(t, state.State.Strokes, 1)
	assert.Equal(t, memory.StatePreview, state.State.Strokes[0].State)

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/"+id+"/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[StateResponse](t, rec).State.Strokes, 1)

	rec = do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[controller.ConfirmResult](t, rec).Confirmed)

	rec = do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/undo", `{"count":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[UndoResponse](t, rec).Removed, 1)

	rec = do(t, s, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Summary](t, rec), 1)

	rec = do(t, s, http.MethodDelete, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectAndStop(t *testing.T) {
	s := setupTestServer(t)
	id := createSession(t, s)

	rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/instructions", `{"instruction":"draw a square"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/reject", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[RejectResponse](t, rec).Rejected)

	rec = do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ControlResponse](t, rec).Stopped)

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/"+id, "")
	assert.True(t, decode[StateResponse](t, rec).Stopped)

	rec = do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/instructions", `{"instruction":"draw a circle"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, controller.MessageStillStopped, decode[controller.Outcome](t, rec).Message)

	rec = do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ControlResponse](t, rec).Stopped)
}

func TestErrors(t *testing.T) {
	s := setupTestServer(t)
	id := createSession(t, s)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"unknown session", http.MethodGet, "/api/v1/sessions/sess_missing", "", http.StatusNotFound},
		{"invalid id", http.MethodGet, "/api/v1/sessions/bad.id", "", http.StatusBadRequest},
		{"empty instruction", http.MethodPost, "/api/v1/sessions/" + id + "/instructions", `{"instruction":"  "}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/sessions/" + id + "/instructions", `{`, http.StatusBadRequest},
		{"zero undo", http.MethodPost, "/api/v1/sessions/" + id + "/undo", `{"count":0}`, http.StatusBadRequest},
		{"events without nats", http.MethodGet, "/api/v1/sessions/" + id + "/events", "", http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)
	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestHandleEvents_StreamsSessionEvents(t *testing.T) {
	ns := startTestNATSServer(t)
	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	mgr := newTestManager(t, events.NewNATSPublisher(nc, "sketchd"))
	s, err := NewServer(mgr, zap.NewNop(), &Config{}, WithEvents(nc, "sketchd"))
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	id := createSession(t, s)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + id + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, nc.Flush())

	rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/instructions", `{"instruction":"draw a square"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	seen := map[events.Type]bool{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for !seen[events.TypeInstructionFinished] {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev events.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, id, ev.SessionID)
		seen[ev.Type] = true
	}
	assert.True(t, seen[events.TypeInstructionStarted])
	assert.True(t, seen[events.TypeStageCommitted])
}
