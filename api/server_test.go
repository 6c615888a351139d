package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/backstage/services/fleet/config"
	"example.com/backstage/services/fleet/internal/cache"
	"example.com/backstage/services/fleet/internal/database/dbtest"
	"example.com/backstage/services/fleet/internal/messaging"
	"example.com/backstage/services/fleet/internal/repository"
	"example.com/backstage/services/fleet/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bus, err := messaging.NewServiceBusClient(config.ServiceBusConfig{}, "fleet-test", log)
	require.NoError(t, err)

	svc, err := service.NewService(service.ServiceConfig{
		Repository:      repository.NewRepository(dbtest.Open(t)),
		Cache:           cache.NewFromClient(rdb),
		MessagingClient: bus,
		Logger:          log,
		Publisher:       messaging.PublisherConfig{Workers: 1, QueueSize: 100},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown() })

	cfg := &config.Config{Server: config.ServerConfig{Port: 0, Mode: "test"}}
	return NewServer(cfg, log, nil, svc).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestDeviceLifecycleOverHTTP(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/devices", map[string]interface{}{"name": "D1", "location": "lab"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = do(t, h, http.MethodPost, "/api/v1/devices/"+id+"/readings", map[string]interface{}{"sensor_type": "temperature", "value": 23.5, "unit": "C"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/v1/devices/"+id+"/readings?sensor_type=temperature&timeframe=24h&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode(t, w)
	assert.Equal(t, 1.0, page["total"])
	readings := page["readings"].([]interface{})
	require.Len(t, readings, 1)
	assert.Equal(t, 23.5, readings[0].(map[string]interface{})["value"])

	w = do(t, h, http.MethodGet, "/api/v1/devices/"+id+"/readings/export?timeframe=24h", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), "id,device_id,sensor_type,value,unit,timestamp")

	w = do(t, h, http.MethodPost, "/api/v1/devices/"+id+"/commands", map[string]interface{}{"action": "set_temperature_limit", "value": 20})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cmd := decode(t, w)
	assert.Equal(t, "pending", cmd["status"])
	cmdID := cmd["id"].(string)

	w = do(t, h, http.MethodPut, "/api/v1/devices/"+id+"/commands/"+cmdID+"/status", map[string]string{"status": "finished"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "finished", decode(t, w)["status"])

	w = do(t, h, http.MethodPut, "/api/v1/devices/"+id+"/commands/"+cmdID+"/status", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decode(t, w)["code"])

	w = do(t, h, http.MethodGet, "/api/v1/devices/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["readings_count"])

	w = do(t, h, http.MethodDelete, "/api/v1/devices/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/devices/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w)["code"])
}

func TestReadingsValidationOverHTTP(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/devices", map[string]interface{}{"name": "D2"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)

	w = do(t, h, http.MethodGet, "/api/v1/devices/"+id+"/readings?timeframe=2h", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decode(t, w)["code"])

	w = do(t, h, http.MethodGet, "/api/v1/devices/"+id+"/readings?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/devices/"+id+"/readings", map[string]interface{}{"sensor_type": "temperature"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/devices/missing/readings", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/devices/"+id+"/readings/export?format=csv", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
}

func TestAlertsAndConfigOverHTTP(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/devices", map[string]interface{}{"name": "D3"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)

	w = do(t, h, http.MethodPost, "/api/v1/devices/"+id+"/alerts", map[string]string{"alert_type": "fire", "message": "smoke", "severity": "high"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	alertID := decode(t, w)["id"].(string)

	w = do(t, h, http.MethodPut, "/api/v1/alerts/"+alertID+"/status", map[string]string{"status": "resolved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, h, http.MethodPut, "/api/v1/alerts/"+alertID+"/status", map[string]string{"status": "new"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/devices/"+id+"/alerts?status=resolved", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["total"])

	w = do(t, h, http.MethodGet, "/api/v1/devices/"+id+"/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["config"])

	w = do(t, h, http.MethodPatch, "/api/v1/devices/"+id+"/config", map[string]float64{"temperature_limit": 25})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, h, http.MethodPatch, "/api/v1/devices/"+id+"/config", map[string]float64{"humidity_limit": 60})
	require.Equal(t, http.StatusOK, w.Code)
	cfg := decode(t, w)["config"].(map[string]interface{})
	assert.Equal(t, 25.0, cfg["temperature_limit"])
	assert.Equal(t, 60.0, cfg["humidity_limit"])

	w = do(t, h, http.MethodPatch, "/api/v1/devices/"+id+"/config", map[string]float64{"fan_speed": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/configs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["count"])

	// no analysis provider configured
	w = do(t, h, http.MethodPost, "/api/v1/devices/"+id+"/analyze", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "UNAVAILABLE", decode(t, w)["code"])

	w = do(t, h, http.MethodGet, "/api/v1/stats/events", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "queue_length")
}
