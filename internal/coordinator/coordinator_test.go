package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/client"
)

// fakeAPI는 코디네이터 테스트용 가짜 클라이언트
type fakeAPI struct {
	mu sync.Mutex

	cameras    []client.Device
	camerasErr error

	systemInfo    *client.SystemInfo
	systemInfoErr error

	users    []client.User
	usersErr error

	licenses    map[string]interface{}
	licensesErr error

	statuses  map[string]map[string]interface{}
	statusErr map[string]error
}

func (f *fakeAPI) GetCameras(ctx context.Context) ([]client.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cameras, f.camerasErr
}

func (f *fakeAPI) GetSystemInfo(ctx context.Context) (*client.SystemInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.systemInfo, f.systemInfoErr
}

func (f *fakeAPI) GetUsers(ctx context.Context) ([]client.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users, f.usersErr
}

func (f *fakeAPI) GetLicenseSummary(ctx context.Context) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.licenses, f.licensesErr
}

func (f *fakeAPI) GetDeviceStatus(ctx context.Context, deviceID string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.statusErr[deviceID]; ok {
		return nil, err
	}
	return f.statuses[deviceID], nil
}

func (f *fakeAPI) set(fn func(*fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func TestCameraCoordinatorKeepsDataOnFailure(t *testing.T) {
	api := &fakeAPI{cameras: []client.Device{{ID: "cam1"}, {ID: "cam2"}}}
	coord := NewCameraCoordinator(api, time.Second, zap.NewNop())

	require.NoError(t, coord.Refresh(context.Background()))
	assert.Len(t, coord.Cameras(), 2)
	assert.False(t, coord.Stale())

	// 갱신 실패: 기존 데이터 유지, stale 표시
	api.set(func(f *fakeAPI) { f.camerasErr = errors.New("down") })
	require.Error(t, coord.Refresh(context.Background()))

	assert.Len(t, coord.Cameras(), 2)
	assert.True(t, coord.Stale())

	// 복구 시 stale 해제
	api.set(func(f *fakeAPI) { f.camerasErr = nil })
	require.NoError(t, coord.Refresh(context.Background()))
	assert.False(t, coord.Stale())
}

func TestCameraCoordinatorAuthFailure(t *testing.T) {
	api := &fakeAPI{cameras: []client.Device{{ID: "cam1"}}}
	coord := NewCameraCoordinator(api, time.Second, zap.NewNop())

	require.NoError(t, coord.Refresh(context.Background()))
	assert.False(t, coord.AuthFailed())

	// 인증 거부는 stale과 별도로 추적됨 (재인증까지 unavailable)
	api.set(func(f *fakeAPI) { f.camerasErr = &client.AuthError{Status: 401} })
	require.Error(t, coord.Refresh(context.Background()))

	assert.True(t, coord.AuthFailed())
	assert.True(t, coord.Stale())
	assert.Len(t, coord.Cameras(), 1)

	// 일반 전송 실패는 인증 플래그를 올리지 않음
	api.set(func(f *fakeAPI) { f.camerasErr = errors.New("down") })
	require.Error(t, coord.Refresh(context.Background()))
	assert.True(t, coord.AuthFailed()) // 성공할 때까지 유지

	api.set(func(f *fakeAPI) { f.camerasErr = nil })
	require.NoError(t, coord.Refresh(context.Background()))
	assert.False(t, coord.AuthFailed())
}

func TestCameraCoordinatorNotifiesListeners(t *testing.T) {
	api := &fakeAPI{cameras: []client.Device{{ID: "cam1"}}}
	coord := NewCameraCoordinator(api, time.Second, zap.NewNop())

	calls := 0
	coord.AddListener(func() { calls++ })

	require.NoError(t, coord.Refresh(context.Background()))
	assert.Equal(t, 1, calls)

	// 실패한 갱신은 리스너를 호출하지 않음
	api.set(func(f *fakeAPI) { f.camerasErr = errors.New("down") })
	coord.Refresh(context.Background())
	assert.Equal(t, 1, calls)
}

func TestCameraCoordinatorLookup(t *testing.T) {
	api := &fakeAPI{cameras: []client.Device{{ID: "cam1", Name: "Front"}}}
	coord := NewCameraCoordinator(api, time.Second, zap.NewNop())
	require.NoError(t, coord.Refresh(context.Background()))

	cam, ok := coord.Camera("cam1")
	assert.True(t, ok)
	assert.Equal(t, "Front", cam.Name)

	_, ok = coord.Camera("nope")
	assert.False(t, ok)
}

func TestServerCoordinatorSystemInfoFailureFailsCycle(t *testing.T) {
	api := &fakeAPI{
		systemInfo: &client.SystemInfo{ID: "sys", Name: "Warehouse"},
		users:      []client.User{{ID: "u1"}},
		licenses:   map[string]interface{}{"digital": map[string]interface{}{"total": 4}},
	}
	coord := NewServerCoordinator(api, time.Second, zap.NewNop())

	require.NoError(t, coord.Refresh(context.Background()))
	assert.False(t, coord.Stale())

	api.set(func(f *fakeAPI) { f.systemInfoErr = errors.New("down") })
	require.Error(t, coord.Refresh(context.Background()))

	assert.True(t, coord.Stale())
	// 데이터는 유지
	assert.Len(t, coord.Data().Users, 1)
}

func TestServerCoordinatorPartialFailureDegradesOnlyThatData(t *testing.T) {
	api := &fakeAPI{
		systemInfo: &client.SystemInfo{ID: "sys"},
		users:      []client.User{{ID: "u1"}, {ID: "u2"}},
		licenses:   map[string]interface{}{"total": 4},
	}
	coord := NewServerCoordinator(api, time.Second, zap.NewNop())
	require.NoError(t, coord.Refresh(context.Background()))

	// 사용자 조회만 실패: 이전 사용자 목록 유지, 사이클은 성공
	api.set(func(f *fakeAPI) {
		f.usersErr = errors.New("down")
		f.licenses = map[string]interface{}{"total": 8}
	})
	require.NoError(t, coord.Refresh(context.Background()))

	data := coord.Data()
	assert.False(t, coord.Stale())
	assert.Len(t, data.Users, 2)
	assert.Equal(t, 8, data.Licenses["total"])
}

func TestServerCoordinatorAuthFailureFailsCycle(t *testing.T) {
	api := &fakeAPI{
		systemInfo: &client.SystemInfo{ID: "sys"},
		users:      []client.User{{ID: "u1"}},
		licenses:   map[string]interface{}{"total": 4},
	}
	coord := NewServerCoordinator(api, time.Second, zap.NewNop())
	require.NoError(t, coord.Refresh(context.Background()))

	// 사용자 조회에서 인증 거부: 부분 실패가 아니라 사이클 실패로 처리
	api.set(func(f *fakeAPI) { f.usersErr = &client.AuthError{Status: 403} })
	require.Error(t, coord.Refresh(context.Background()))

	assert.True(t, coord.AuthFailed())
	assert.True(t, coord.Stale())
	assert.Len(t, coord.Data().Users, 1)

	api.set(func(f *fakeAPI) { f.usersErr = nil })
	require.NoError(t, coord.Refresh(context.Background()))
	assert.False(t, coord.AuthFailed())
}

func TestStatusCoordinatorMergesSuccessesOnly(t *testing.T) {
	api := &fakeAPI{
		cameras: []client.Device{{ID: "cam1"}, {ID: "cam2"}},
		statuses: map[string]map[string]interface{}{
			"cam1": {"state": "Online"},
			"cam2": {"state": "Recording"},
		},
		statusErr: map[string]error{},
	}
	cams := NewCameraCoordinator(api, time.Second, zap.NewNop())
	require.NoError(t, cams.Refresh(context.Background()))

	coord := NewStatusCoordinator(api, cams, time.Second, zap.NewNop())
	coord.Refresh(context.Background())

	status, ok := coord.Status("cam1")
	require.True(t, ok)
	assert.Equal(t, "Online", status["state"])

	// cam2만 실패: cam2는 이전 값 유지
	api.set(func(f *fakeAPI) {
		f.statusErr["cam2"] = errors.New("down")
		f.statuses["cam1"] = map[string]interface{}{"state": "Offline"}
	})
	coord.Refresh(context.Background())

	status, _ = coord.Status("cam1")
	assert.Equal(t, "Offline", status["state"])

	status, ok = coord.Status("cam2")
	require.True(t, ok)
	assert.Equal(t, "Recording", status["state"])
}

func TestStatusCoordinatorDropsVanishedCameras(t *testing.T) {
	api := &fakeAPI{
		cameras:  []client.Device{{ID: "cam1"}, {ID: "cam2"}},
		statuses: map[string]map[string]interface{}{"cam1": {}, "cam2": {}},
	}
	cams := NewCameraCoordinator(api, time.Second, zap.NewNop())
	require.NoError(t, cams.Refresh(context.Background()))

	coord := NewStatusCoordinator(api, cams, time.Second, zap.NewNop())
	coord.Refresh(context.Background())

	_, ok := coord.Status("cam2")
	require.True(t, ok)

	// cam2가 서버에서 사라짐
	api.set(func(f *fakeAPI) { f.cameras = []client.Device{{ID: "cam1"}} })
	require.NoError(t, cams.Refresh(context.Background()))
	coord.Refresh(context.Background())

	_, ok = coord.Status("cam2")
	assert.False(t, ok)
}
