package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankerai/orchestrator/internal/aggregation"
	"github.com/bankerai/orchestrator/internal/agents"
	"github.com/bankerai/orchestrator/internal/classification"
	"github.com/bankerai/orchestrator/internal/orchestrator"
	"github.com/bankerai/orchestrator/internal/streaming"
)

type cannedAgent struct {
	id agents.AgentID
}

func (c cannedAgent) ID() agents.AgentID { return c.id }
func (c cannedAgent) Execute(context.Context, *agents.QueryContext) (*agents.Output, error) {
	return &agents.Output{Summary: string(c.id) + " summary"}, nil
}

func newOrchestrator(t *testing.T, sink orchestrator.EventSink) (*orchestrator.Orchestrator, *agents.Registry) {
	t.Helper()
	reg := agents.NewRegistry(nil)
	for _, id := range agents.AllAgentIDs() {
		require.NoError(t, reg.Register(cannedAgent{id: id}))
	}
	classifier := classification.NewClassifier(classification.Config{}, nil, nil, nil)
	aggregator := aggregation.New(nil, false, nil)
	return orchestrator.New(orchestrator.Config{}, classifier, reg, aggregator, nil, sink, nil), reg
}

func TestQueryHandler(t *testing.T) {
	orch, _ := newOrchestrator(t, nil)
	h := NewQueryHandler(orch, nil)

	t.Run("finance query fans out", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
			strings.NewReader(`{"query":"What's Apple's stock performance?"}`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp aggregation.Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, aggregation.StatusSuccess, resp.Status)
		assert.Len(t, resp.Results, 5)
		assert.NotEmpty(t, resp.RequestID)
		assert.NotEmpty(t, resp.Synthesis)
	})

	t.Run("empty query rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
			strings.NewReader(`{"query":"   "}`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid body rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
			strings.NewReader(`{`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/query", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestAgentsHandler(t *testing.T) {
	_, reg := newOrchestrator(t, nil)
	h := NewAgentsHandler(reg, "v-test")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp agentsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{"finance", "yahoo", "sec", "reddit", "general"}, resp.Agents)
	assert.Equal(t, "v-test", resp.System.Version)
	assert.NotEmpty(t, resp.System.GoVersion)
}

func TestStreamQueryEndsWithResponseFrame(t *testing.T) {
	hub := streaming.NewHub()
	orch, _ := newOrchestrator(t, hub)
	srv := httptest.NewServer(NewStreamHandler(orch, hub, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{
		"query": "tell me a joke about penguins",
	}))

	var frames []json.RawMessage
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure),
				"unexpected read error: %v", err)
			break
		}
		frames = append(frames, raw)
	}
	// At minimum QUERY_RECEIVED, CLASSIFIED, AGENT_STARTED, AGENT_COMPLETED,
	// COMPLETED and the response frame.
	require.GreaterOrEqual(t, len(frames), 6)

	var first orchestrator.Event
	require.NoError(t, json.Unmarshal(frames[0], &first))
	assert.Equal(t, orchestrator.EventQueryReceived, first.Type)
	require.NotEmpty(t, first.RequestID)

	// Every frame before the last is a lifecycle event of the same request.
	for _, f := range frames[:len(frames)-1] {
		var ev orchestrator.Event
		require.NoError(t, json.Unmarshal(f, &ev))
		assert.NotEmpty(t, ev.Type)
		assert.Equal(t, first.RequestID, ev.RequestID)
	}

	var final aggregation.Response
	require.NoError(t, json.Unmarshal(frames[len(frames)-1], &final))
	assert.Equal(t, aggregation.StatusSuccess, final.Status)
	assert.Equal(t, first.RequestID, final.RequestID)
	assert.NotEmpty(t, final.Synthesis)
}

func TestStreamRejectsEmptyQuery(t *testing.T) {
	hub := streaming.NewHub()
	orch, _ := newOrchestrator(t, hub)
	srv := httptest.NewServer(NewStreamHandler(orch, hub, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"query": "   "}))

	// The QUERY_RECEIVED event may precede the error frame.
	var got string
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame map[string]interface{}
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		if msg, ok := frame["error"].(string); ok {
			got = msg
			break
		}
	}
	assert.Equal(t, "query must not be empty", got)
}

func TestStreamWatchModeObservesHub(t *testing.T) {
	hub := streaming.NewHub()
	orch, _ := newOrchestrator(t, hub)
	srv := httptest.NewServer(NewStreamHandler(orch, hub, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?watch=1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the handler a moment to subscribe before publishing.
	require.Eventually(t, func() bool {
		hub.Publish(orchestrator.Event{
			RequestID: "req-1",
			Type:      orchestrator.EventQueryReceived,
			Timestamp: time.Now(),
		})
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var ev orchestrator.Event
		return conn.ReadJSON(&ev) == nil && ev.Type == orchestrator.EventQueryReceived
	}, 5*time.Second, 50*time.Millisecond)
}
