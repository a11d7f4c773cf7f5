package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/wyfcoding/clusterd/config"
	"github.com/wyfcoding/clusterd/jwt"
	"github.com/wyfcoding/clusterd/repository/memrepo"
	"github.com/wyfcoding/clusterd/service"
	"github.com/wyfcoding/clusterd/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type syncPool struct{}

func (syncPool) TrySubmit(task worker.Task) error {
	task(context.Background())
	return nil
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testAPI struct {
	t      *testing.T
	engine *gin.Engine
	token  string
	cookie *http.Cookie
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memrepo.New()
	tokens := jwt.NewManager("0123456789abcdef0123", "clusterd", time.Minute, 7)

	h := New(
		service.NewUserService(st.Users(), tokens, logger),
		service.NewChatService(st.Chats()),
		service.NewKmeansService(st.Chats(), st.Kmeans(), syncPool{}, nil, config.KmeansConfig{}, time.Minute, nil, logger),
		tokens,
		Options{RefreshExpireDays: 7},
	)
	cfg := &config.Config{}
	cfg.Server.Name = "clusterd-test"
	engine, err := NewRouter(h, RouterDeps{Config: cfg, Logger: logger})
	require.NoError(t, err)
	return &testAPI{t: t, engine: engine}
}

func (a *testAPI) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(a.t, err)
			rd = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	if a.cookie != nil {
		req.AddCookie(a.cookie)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (a *testAPI) signup(username string) {
	a.t.Helper()
	form := url.Values{"username": {username}, "password": {"Secret#123"}}
	req := httptest.NewRequest(http.MethodPost, "/users/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())

	var env envelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env))
	var tok tokenResponse
	require.NoError(a.t, json.Unmarshal(env.Data, &tok))
	assert.Equal(a.t, "bearer", tok.TokenType)
	a.token = tok.AccessToken

	for _, c := range w.Result().Cookies() {
		if c.Name == refreshCookie {
			a.cookie = c
			assert.True(a.t, c.HttpOnly)
			assert.Equal(a.t, 7*24*60*60, c.MaxAge)
		}
	}
	require.NotNil(a.t, a.cookie)
}

func TestUserRoutes(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice")

	w, env := api.do(http.MethodGet, "/users/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var u userRead
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.Equal(t, "alice", u.Username)
	assert.Nil(t, u.FullName)

	w, env = api.do(http.MethodPatch, "/users/", map[string]any{"full_name": "Alice Smith"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.Equal(t, "Alice Smith", *u.FullName)

	w, _ = api.do(http.MethodPut, "/users/", map[string]any{"username": "alice"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "full update needs every field")

	w, _ = api.do(http.MethodPatch, "/users/", map[string]any{"nickname": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "unknown fields are rejected")

	w, _ = api.do(http.MethodPost, "/users/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(http.MethodDelete, "/users/", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = api.do(http.MethodGet, "/users/", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignupConflictAndLogin(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice")

	w, env := api.do(http.MethodPost, "/users/signup", map[string]any{"username": "alice", "password": "Secret#123"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Username already exists", env.Msg)

	w, _ = api.do(http.MethodPost, "/users/login", map[string]any{"username": "alice", "password": "Secret#123"})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(http.MethodPost, "/users/login", map[string]any{"username": "alice", "password": "Wrong#1234"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/users/", "/chats/", "/kmeans/"} {
		w, _ := api.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestChatRoutes(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice")

	w, env := api.do(http.MethodPost, "/chats/", map[string]any{"title": "first"})
	require.Equal(t, http.StatusCreated, w.Code)
	var chat chatRead
	require.NoError(t, json.Unmarshal(env.Data, &chat))

	w, _ = api.do(http.MethodPost, "/chats/", map[string]any{"title": strings.Repeat("x", 257)})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, env = api.do(http.MethodPut, "/chats/"+chat.ID.String(), map[string]any{"title": "t", "description": "d"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &chat))
	assert.Equal(t, "d", *chat.Description)

	w, env = api.do(http.MethodGet, "/chats/?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []chatRead
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	w, _ = api.do(http.MethodGet, "/chats/not-a-uuid", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	other := newTestAPI(t)
	other.engine = api.engine
	other.signup("bob")
	w, _ = other.do(http.MethodGet, "/chats/"+chat.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = api.do(http.MethodDelete, "/chats/"+chat.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestKmeansRoutes(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice")
	_, env := api.do(http.MethodPost, "/chats/", map[string]any{"title": "data"})
	var chat chatRead
	require.NoError(t, json.Unmarshal(env.Data, &chat))

	body := `{
		"kmeans": {"n_clusters": 2, "init": "kmeans++"},
		"normalization": "z_score",
		"pca": null,
		"chat_id": "` + chat.ID.String() + `",
		"X": [[0, 0], [0, 1], [1, null], [1, 1], [10, 10], [10, 11], [11, 10], [11, 11]]
	}`
	w, env := api.do(http.MethodPost, "/kmeans/fit", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var accepted fitAccepted
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.Equal(t, "Fit started", accepted.Status)
	id := accepted.KmeansDataID.String()

	w, env = api.do(http.MethodGet, "/kmeans/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data kmeansDataRead
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "done", string(data.Status))
	assert.Equal(t, "z-score", data.Preprocessing.Normalization)

	w, env = api.do(http.MethodGet, "/kmeans/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []kmeansCentroidRead
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Len(t, history[0].Values, 2)
	require.NotNil(t, history[0].KmeansData)

	w, env = api.do(http.MethodPost, "/kmeans/"+id+"/predict", `{"X": [[0.2, 0.1], [10.4, null]]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pred predictResponse
	require.NoError(t, json.Unmarshal(env.Data, &pred))
	require.Len(t, pred.Labels, 2)
	assert.NotEqual(t, pred.Labels[0], pred.Labels[1])

	w, env = api.do(http.MethodGet, "/kmeans/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []kmeansDataRead
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 1)

	w, _ = api.do(http.MethodDelete, "/kmeans/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = api.do(http.MethodGet, "/kmeans/"+id+"/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKmeansFitValidation(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice")
	_, env := api.do(http.MethodPost, "/chats/", map[string]any{"title": "data"})
	var chat chatRead
	require.NoError(t, json.Unmarshal(env.Data, &chat))

	fit := func(kmeans map[string]any, x any) int {
		w, _ := api.do(http.MethodPost, "/kmeans/fit", map[string]any{
			"kmeans": kmeans, "pca": nil, "chat_id": chat.ID, "X": x,
		})
		return w.Code
	}
	x := [][]float64{{0, 0}, {1, 1}, {2, 2}}

	assert.Equal(t, http.StatusBadRequest, fit(map[string]any{"n_clusters": 1}, x))
	assert.Equal(t, http.StatusBadRequest, fit(map[string]any{"n_clusters": 5}, x))
	assert.Equal(t, http.StatusBadRequest, fit(map[string]any{"n_clusters": 2, "tol": 2}, x))
	assert.Equal(t, http.StatusBadRequest, fit(map[string]any{"n_clusters": 2, "init": "spectral"}, x))
	assert.Equal(t, http.StatusUnprocessableEntity, fit(map[string]any{"n_clusters": 2}, [][]float64{{0, 0}, {1}}))
	assert.Equal(t, http.StatusUnprocessableEntity, fit(map[string]any{"n_clusters": 2}, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, fit(map[string]any{"n_clusters": 2, "foo": 1}, x))
	assert.Equal(t, http.StatusAccepted, fit(map[string]any{"n_clusters": 2, "random_state": nil}, x))
}

func TestFitConfigDefaults(t *testing.T) {
	var r fitRequest
	require.NoError(t, json.Unmarshal([]byte(`{"kmeans":{"n_clusters":3},"normalization":null,"pca":{},"chat_id":"00000000-0000-0000-0000-000000000001","X":[[1]]}`), &r))
	cfg, err := r.config()
	require.NoError(t, err)
	require.NotNil(t, cfg.RandomState)
	assert.Equal(t, int64(1), *cfg.RandomState)
	assert.Equal(t, "none", string(cfg.Normalization))
	assert.Equal(t, 2, cfg.PCANComponents)

	r = fitRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"kmeans":{"n_clusters":3,"random_state":null},"X":[[1]]}`), &r))
	cfg, err = r.config()
	require.NoError(t, err)
	assert.Nil(t, cfg.RandomState)
	assert.Equal(t, "z-score", string(cfg.Normalization))
	assert.Zero(t, cfg.PCANComponents)
}
