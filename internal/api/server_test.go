package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/client"
	"github.com/yourusername/dwbridge/internal/coordinator"
	"github.com/yourusername/dwbridge/internal/core"
	"github.com/yourusername/dwbridge/internal/entity"
)

// fakeVMS는 API 테스트용 가짜 DW 클라이언트
type fakeVMS struct {
	cameras  []client.Device
	users    []client.User
	snapshot []byte
	writeErr error
}

func (f *fakeVMS) GetCameras(ctx context.Context) ([]client.Device, error) { return f.cameras, nil }
func (f *fakeVMS) GetSystemInfo(ctx context.Context) (*client.SystemInfo, error) {
	return &client.SystemInfo{ID: "sys", Name: "Warehouse"}, nil
}
func (f *fakeVMS) GetUsers(ctx context.Context) ([]client.User, error) { return f.users, nil }
func (f *fakeVMS) GetLicenseSummary(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"digital": map[string]interface{}{"total": 4, "inUse": 1}}, nil
}
func (f *fakeVMS) GetDeviceStatus(ctx context.Context, id string) (map[string]interface{}, error) {
	return map[string]interface{}{"state": "Online"}, nil
}
func (f *fakeVMS) StreamURL(cameraID string, streamIndex int) string {
	return fmt.Sprintf("rtsp://host:7001/%s?stream=%d", cameraID, streamIndex)
}
func (f *fakeVMS) GetDeviceImage(ctx context.Context, id string) ([]byte, error) {
	return f.snapshot, nil
}
func (f *fakeVMS) SetCameraRecordingMode(ctx context.Context, id string, mode client.RecordingMode) error {
	return f.writeErr
}
func (f *fakeVMS) SetCameraScheduleEnabled(ctx context.Context, id string, enabled bool) error {
	return f.writeErr
}
func (f *fakeVMS) SetUserEnabled(ctx context.Context, id string, enabled bool) error {
	return f.writeErr
}

func newTestServer(t *testing.T, vms *fakeVMS) *Server {
	t.Helper()

	store := core.NewStateStore(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
	writer := coordinator.NewWriter(1, time.Millisecond, zap.NewNop())

	camCoord := coordinator.NewCameraCoordinator(vms, time.Second, zap.NewNop())
	require.NoError(t, camCoord.Refresh(context.Background()))
	serverCoord := coordinator.NewServerCoordinator(vms, time.Second, zap.NewNop())
	require.NoError(t, serverCoord.Refresh(context.Background()))

	cameras := entity.NewCameras(entity.CamerasConfig{
		API:    vms,
		Coord:  camCoord,
		Store:  store,
		Writer: writer,
		Logger: zap.NewNop(),
	})
	users := entity.NewUsers(vms, serverCoord, writer, zap.NewNop())
	sensors := entity.NewSensors(camCoord, serverCoord)

	return NewServer(ServerConfig{
		Port:    0,
		Logger:  zap.NewNop(),
		Cameras: cameras,
		Users:   users,
		Sensors: sensors,
		LicensesHandler: func() map[string]interface{} {
			return serverCoord.Data().Licenses
		},
		StatusHandler: func(id string) (map[string]interface{}, bool) {
			if id == "cam1" {
				return map[string]interface{}{"state": "Online"}, true
			}
			return nil, false
		},
	})
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func defaultVMS() *fakeVMS {
	return &fakeVMS{
		cameras: []client.Device{
			{ID: "cam1", Name: "Front", Schedule: &client.Schedule{
				IsEnabled: true,
				Tasks:     []client.ScheduleTask{{RecordingType: "always", MetadataTypes: "none"}},
			}},
		},
		users:    []client.User{{ID: "u1", Name: "admin", IsEnabled: true}},
		snapshot: []byte("jpeg"),
	}
}

func TestListCameras(t *testing.T) {
	s := newTestServer(t, defaultVMS())

	w := doRequest(s, http.MethodGet, "/api/v1/cameras", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Cameras []entity.CameraState `json:"cameras"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Cameras, 1)
	assert.Equal(t, "Front", resp.Cameras[0].Name)
	assert.Equal(t, client.RecordingAlways, resp.Cameras[0].RecordingMode)
}

func TestGetCameraNotFound(t *testing.T) {
	s := newTestServer(t, defaultVMS())

	w := doRequest(s, http.MethodGet, "/api/v1/cameras/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSnapshotBlockedReturnsNoContent(t *testing.T) {
	s := newTestServer(t, defaultVMS())

	w := doRequest(s, http.MethodGet, "/api/v1/cameras/cam1/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg", w.Body.String())

	w = doRequest(s, http.MethodPost, "/api/v1/cameras/cam1/stream-block", map[string]bool{"blocked": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodGet, "/api/v1/cameras/cam1/snapshot", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestStreamBlockEndpoint(t *testing.T) {
	s := newTestServer(t, defaultVMS())

	w := doRequest(s, http.MethodPost, "/api/v1/cameras/cam1/stream-block", map[string]bool{"blocked": true})
	require.Equal(t, http.StatusOK, w.Code)

	var state entity.CameraState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.True(t, state.StreamBlocked)
	assert.Empty(t, state.StreamURL)
}

func TestRecordingModeEndpointValidation(t *testing.T) {
	s := newTestServer(t, defaultVMS())

	w := doRequest(s, http.MethodPost, "/api/v1/cameras/cam1/recording-mode", map[string]string{"mode": "sometimes"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, http.MethodPost, "/api/v1/cameras/cam1/recording-mode", map[string]string{"mode": "motion"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecordingModeWriteFailureIsBadGateway(t *testing.T) {
	vms := defaultVMS()
	vms.writeErr = &client.TransportError{Op: "patch", Err: fmt.Errorf("connection refused")}
	s := newTestServer(t, vms)

	w := doRequest(s, http.MethodPost, "/api/v1/cameras/cam1/recording-mode", map[string]string{"mode": "motion"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestUserEnabledEndpoint(t *testing.T) {
	s := newTestServer(t, defaultVMS())

	w := doRequest(s, http.MethodPost, "/api/v1/users/u1/enabled", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodPost, "/api/v1/users/ghost/enabled", map[string]bool{"enabled": false})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSensorsEndpoint(t *testing.T) {
	s := newTestServer(t, defaultVMS())

	w := doRequest(s, http.MethodGet, "/api/v1/sensors", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var values entity.SensorValues
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &values))
	assert.Equal(t, 1, values.CameraCount)
	require.NotNil(t, values.LicenseTotal)
	assert.Equal(t, 4, *values.LicenseTotal)
	// available = total - used 유도
	require.NotNil(t, values.LicenseAvailable)
	assert.Equal(t, 3, *values.LicenseAvailable)
}

func TestLicensesEndpoint(t *testing.T) {
	s := newTestServer(t, defaultVMS())

	w := doRequest(s, http.MethodGet, "/api/v1/licenses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "digital")
}

func TestCameraStatusEndpoint(t *testing.T) {
	s := newTestServer(t, defaultVMS())

	w := doRequest(s, http.MethodGet, "/api/v1/cameras/cam1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Online")

	w = doRequest(s, http.MethodGet, "/api/v1/cameras/ghost/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, defaultVMS())

	w := doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
