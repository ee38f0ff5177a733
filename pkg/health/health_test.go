package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_Run(t *testing.T) {
	c := NewChecker("test")
	c.Add("database", true, func(context.Context) error { return nil })
	c.Add("kafka", false, func(context.Context) error { return errors.New("no brokers") })

	results, status := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, status)
	assert.Equal(t, StatusHealthy, results["database"].Status)
	assert.Equal(t, "no brokers", results["kafka"].Message)

	c.Add("database", true, func(context.Context) error { return errors.New("refused") })
	_, status = c.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, status)
}

func TestChecker_Readiness(t *testing.T) {
	e := echo.New()
	c := NewChecker("test")
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.SetReady(true)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusHealthy, body.Status)
}
