package realtime

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Pulse/module/realtime/model"
	rt "Pulse/service/realtime"
	"Pulse/service/storage"
	"Pulse/tools/errs"
	sec "Pulse/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type apiEnv struct {
	engine *gin.Engine
	store  *storage.Store
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.OpenMemory()
	registry := rt.NewRegistry(store)
	tracker := rt.NewTracker(store, nil, 5*time.Minute)
	router := rt.NewRouter(store, nil, "node-test", 100)
	h := NewHandler(registry, tracker, router)

	verify := func(token string) (*sec.Identity, error) {
		parts := strings.SplitN(token, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, errs.ErrUnauthorized
		}
		return &sec.Identity{UserID: parts[0], TenantID: parts[1]}, nil
	}

	engine := gin.New()
	h.RegisterRoutes(engine, verify)
	return &apiEnv{engine: engine, store: store}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestAPIRequiresAuth(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)

	w := env.do(t, http.MethodGet, "/channels", "", nil)
	req.Equal(http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/channels", "broken", nil)
	req.Equal(http.StatusUnauthorized, w.Code)
}

func TestAPIChannelLifecycle(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/channels", "alice:t1",
		map[string]any{"name": "general", "type": "public"})
	req.Equal(http.StatusCreated, w.Code)
	created := decodeBody[model.Channel](t, w)
	req.NotEmpty(created.ID)
	req.Equal("t1", created.TenantID)

	w = env.do(t, http.MethodGet, "/channels/"+created.ID, "alice:t1", nil)
	req.Equal(http.StatusOK, w.Code)

	// Same channel through another tenant's credential reads as missing.
	w = env.do(t, http.MethodGet, "/channels/"+created.ID, "mallory:t2", nil)
	req.Equal(http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/channels", "alice:t1", nil)
	req.Equal(http.StatusOK, w.Code)
	listed := decodeBody[struct {
		Channels []model.Channel `json:"channels"`
	}](t, w)
	req.Len(listed.Channels, 1)
}

func TestAPICreateChannelValidation(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/channels", "alice:t1", map[string]any{"type": "public"})
	req.Equal(http.StatusBadRequest, w.Code, "name required")

	w = env.do(t, http.MethodPost, "/channels", "alice:t1",
		map[string]any{"name": "x", "type": "banana"})
	req.Equal(http.StatusBadRequest, w.Code, "unknown channel type")
}

func TestAPIPresenceLifecycle(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/channels", "alice:t1",
		map[string]any{"name": "room", "type": "presence"})
	req.Equal(http.StatusCreated, w.Code)
	ch := decodeBody[model.Channel](t, w)

	w = env.do(t, http.MethodPost, "/channels/"+ch.ID+"/join", "alice:t1",
		map[string]any{"metadata": map[string]any{"name": "Alice"}})
	req.Equal(http.StatusOK, w.Code)
	rec := decodeBody[model.PresenceRecord](t, w)
	req.Equal(model.StatusOnline, rec.Status)

	w = env.do(t, http.MethodPut, "/channels/"+ch.ID+"/presence", "alice:t1",
		map[string]any{"status": "away"})
	req.Equal(http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/channels/"+ch.ID+"/presence", "alice:t1", nil)
	req.Equal(http.StatusOK, w.Code)
	members := decodeBody[struct {
		Members []model.PresenceRecord `json:"members"`
	}](t, w)
	req.Len(members.Members, 1)
	req.Equal(model.StatusAway, members.Members[0].Status)

	w = env.do(t, http.MethodPost, "/channels/"+ch.ID+"/heartbeat", "alice:t1", nil)
	req.Equal(http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/channels/"+ch.ID+"/leave", "alice:t1", nil)
	req.Equal(http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/channels/"+ch.ID+"/presence", "alice:t1", nil)
	members = decodeBody[struct {
		Members []model.PresenceRecord `json:"members"`
	}](t, w)
	req.Empty(members.Members)
}

func TestAPIStatusUpdateWithoutJoin(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/channels", "alice:t1",
		map[string]any{"name": "room", "type": "presence"})
	ch := decodeBody[model.Channel](t, w)

	w = env.do(t, http.MethodPut, "/channels/"+ch.ID+"/presence", "alice:t1",
		map[string]any{"status": "busy"})
	req.Equal(http.StatusNotFound, w.Code)
}

func TestAPIBroadcastAndHistory(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/channels", "alice:t1",
		map[string]any{"name": "general", "type": "public"})
	ch := decodeBody[model.Channel](t, w)

	w = env.do(t, http.MethodPost, "/channels/"+ch.ID+"/broadcast", "alice:t1",
		map[string]any{"event": "chat:message", "payload": map[string]any{"text": "hello"}})
	req.Equal(http.StatusCreated, w.Code)
	msg := decodeBody[model.Message](t, w)
	req.Equal("alice", msg.UserID)
	req.Equal("chat:message", msg.Event)

	w = env.do(t, http.MethodGet, "/channels/"+ch.ID+"/messages", "alice:t1", nil)
	req.Equal(http.StatusOK, w.Code)
	hist := decodeBody[struct {
		Messages []model.Message `json:"messages"`
	}](t, w)
	req.Len(hist.Messages, 1)
	req.Equal("hello", hist.Messages[0].Payload["text"])
}

func TestAPIBroadcastRequiresEvent(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/channels", "alice:t1",
		map[string]any{"name": "general", "type": "public"})
	ch := decodeBody[model.Channel](t, w)

	w = env.do(t, http.MethodPost, "/channels/"+ch.ID+"/broadcast", "alice:t1",
		map[string]any{"payload": map[string]any{"text": "no event"}})
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestAPITrackUntrackAliases(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/channels", "alice:t1",
		map[string]any{"name": "room", "type": "presence"})
	ch := decodeBody[model.Channel](t, w)

	w = env.do(t, http.MethodPost, "/channels/"+ch.ID+"/track", "alice:t1", nil)
	req.Equal(http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/channels/"+ch.ID+"/untrack", "alice:t1", nil)
	req.Equal(http.StatusOK, w.Code)
}
