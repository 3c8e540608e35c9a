package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, Value(c))
	})
	return r
}

func TestMiddlewareGeneratesID(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	newEngine().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(headerKey)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, w.Body.String())
}

func TestMiddlewareKeepsClientID(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(headerKey, "client-123")
	newEngine().ServeHTTP(w, req)

	assert.Equal(t, "client-123", w.Header().Get(headerKey))
}

func TestMiddlewareReplacesOversizedID(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(headerKey, strings.Repeat("x", maxLength+1))
	newEngine().ServeHTTP(w, req)

	assert.NotEqual(t, strings.Repeat("x", maxLength+1), w.Header().Get(headerKey))
}

func TestMiddlewareReplacesUnsafeID(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(headerKey, "abc\ninjected=1")
	newEngine().ServeHTTP(w, req)

	_, err := uuid.Parse(w.Header().Get(headerKey))
	assert.NoError(t, err)
}

func TestFromContextFollowsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ctx", func(c *gin.Context) {
		c.String(http.StatusOK, FromContext(c.Request.Context()))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ctx", nil)
	req.Header.Set(headerKey, "trace-42")
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-42", w.Body.String())
	assert.Empty(t, FromContext(req.Context()))
}
