package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wyfcoding/clusterd/contextx"
	"github.com/wyfcoding/clusterd/jwt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// countLimiter 第 n 次以后拒绝。
type countLimiter struct {
	n    int
	seen map[string]int
	err  error
}

func (l *countLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.seen == nil {
		l.seen = map[string]int{}
	}
	l.seen[key]++
	return l.seen[key] <= l.n, nil
}

func do(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestClientIP(t *testing.T) {
	r := gin.New()
	r.Use(ClientContext())
	r.GET("/ip", func(c *gin.Context) {
		c.String(http.StatusOK, contextx.GetIP(c.Request.Context()))
	})

	w := do(r, http.MethodGet, "/ip", map[string]string{"X-Forwarded-For": " 10.0.0.1 , 10.0.0.2"})
	assert.Equal(t, "10.0.0.1", w.Body.String())

	w = do(r, http.MethodGet, "/ip", nil)
	assert.Equal(t, "192.0.2.1", w.Body.String())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, contextx.GetRequestID(c.Request.Context()))
	})

	w := do(r, http.MethodGet, "/", map[string]string{HeaderXRequestID: "abc"})
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get(HeaderXRequestID))

	w = do(r, http.MethodGet, "/", nil)
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get(HeaderXRequestID))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(discard))
	r.GET("/", func(*gin.Context) { panic("boom") })

	w := do(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal Server Error")
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestRateLimitKeys(t *testing.T) {
	global := &countLimiter{n: 3}
	route := &countLimiter{n: 2}
	r := gin.New()
	r.Use(ClientContext())
	r.Use(RateLimit(nil,
		RateLimitRule{Scope: "global", Limiter: global, Key: GlobalKey("rl:global")},
		RateLimitRule{Scope: "route", Limiter: route, Key: RouteKey("rl:route")},
	))
	r.GET("/a/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/b", func(c *gin.Context) { c.Status(http.StatusOK) })

	hdr := map[string]string{"X-Forwarded-For": "1.2.3.4"}
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/a/1", hdr).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/a/2", hdr).Code)
	w := do(r, http.MethodGet, "/a/3", hdr)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests", body["msg"])

	assert.Equal(t, 3, global.seen["rl:global:1.2.3.4"])
	assert.Equal(t, 3, route.seen["rl:route:/a/:id:1.2.3.4"])

	// 全局计数已用完
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/b", hdr).Code)
	// 其他客户端不受影响
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/b", map[string]string{"X-Forwarded-For": "5.6.7.8"}).Code)
}

func TestRateLimitCapSharedAcrossClients(t *testing.T) {
	capped := &countLimiter{n: 1}
	r := gin.New()
	r.Use(ClientContext())
	r.Use(RateLimit(nil, RateLimitRule{Scope: "cap", Limiter: capped, Key: CapKey("cb")}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/x", map[string]string{"X-Forwarded-For": "1.1.1.1"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/x", map[string]string{"X-Forwarded-For": "2.2.2.2"}).Code)
	assert.Equal(t, 2, capped.seen["cb:route:/x"])
}

func TestRateLimitFailOpen(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(nil, RateLimitRule{Scope: "global", Limiter: &countLimiter{err: errors.New("redis down")}, Key: GlobalKey("rl")}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/", nil).Code)
}

func TestJWTAuth(t *testing.T) {
	m := jwt.NewManager("0123456789abcdef", "clusterd", time.Minute, 1)
	r := gin.New()
	r.Use(JWTAuth(m))
	r.GET("/me", func(c *gin.Context) {
		id, ok := GetUserID(c)
		require.True(t, ok)
		assert.Equal(t, id.String(), contextx.GetUserID(c.Request.Context()))
		c.String(http.StatusOK, id.String())
	})

	uid := uuid.New()
	access, err := m.GenerateAccess(uid)
	require.NoError(t, err)
	refresh, err := m.GenerateRefresh(uid)
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + access})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uid.String(), w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + refresh}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", map[string]string{"Authorization": "Basic " + access}).Code)
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(4))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(10 * time.Millisecond))
	r.GET("/", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	assert.Equal(t, http.StatusGatewayTimeout, do(r, http.MethodGet, "/", nil).Code)
}
