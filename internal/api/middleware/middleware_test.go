package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/haven-automation/haven-hub/pkg/errors"
	"github.com/haven-automation/haven-hub/pkg/utils"
)

func errorTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	r := gin.New()
	r.Use(ErrorResponseMiddleware(log))
	r.GET("/missing", func(c *gin.Context) {
		c.Error(apperrors.Wrap(apperrors.ErrEntityNotFound, assertableErr("sensor.gone")))
	})
	r.GET("/bad", func(c *gin.Context) {
		c.Error(apperrors.Wrap(apperrors.ErrBadRequest, assertableErr("field missing")))
	})
	r.GET("/boom", func(c *gin.Context) {
		c.Error(assertableErr("disk on fire"))
	})
	return r
}

type assertableErr string

func (e assertableErr) Error() string { return string(e) }

func doRequest(t *testing.T, r *gin.Engine, path string) (int, utils.ErrorResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)

	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestErrorMiddlewareMapsNotFound(t *testing.T) {
	r := errorTestRouter(t)

	code, body := doRequest(t, r, "/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, body.Success)
	assert.Equal(t, http.StatusNotFound, body.Code)
	assert.Contains(t, body.Error, "entity not found")
}

func TestErrorMiddlewareMapsBadRequest(t *testing.T) {
	r := errorTestRouter(t)

	code, body := doRequest(t, r, "/bad")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, http.StatusBadRequest, body.Code)
}

func TestErrorMiddlewareDefaultsToInternalError(t *testing.T) {
	r := errorTestRouter(t)

	code, body := doRequest(t, r, "/boom")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal server error", body.Error)
}
