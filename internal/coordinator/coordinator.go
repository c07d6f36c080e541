package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/client"
)

// API는 코디네이터가 사용하는 DW Spectrum 클라이언트 작업 집합
type API interface {
	GetCameras(ctx context.Context) ([]client.Device, error)
	GetSystemInfo(ctx context.Context) (*client.SystemInfo, error)
	GetUsers(ctx context.Context) ([]client.User, error)
	GetLicenseSummary(ctx context.Context) (map[string]interface{}, error)
	GetDeviceStatus(ctx context.Context, deviceID string) (map[string]interface{}, error)
}

// CameraCoordinator는 카메라 목록을 주기적으로 갱신합니다.
// 갱신 실패 시 마지막으로 알려진 데이터를 유지하고 stale로 표시합니다.
type CameraCoordinator struct {
	api      API
	interval time.Duration
	logger   *zap.Logger

	mu          sync.RWMutex
	cameras     []client.Device
	stale       bool
	authFailed  bool
	lastSuccess time.Time

	listenerMu sync.Mutex
	listeners  []func()
}

// NewCameraCoordinator는 새로운 카메라 코디네이터를 생성합니다
func NewCameraCoordinator(api API, interval time.Duration, logger *zap.Logger) *CameraCoordinator {
	return &CameraCoordinator{
		api:      api,
		interval: interval,
		logger:   logger,
	}
}

// AddListener는 갱신 성공 시 호출될 리스너를 등록합니다
func (c *CameraCoordinator) AddListener(fn func()) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *CameraCoordinator) notifyListeners() {
	c.listenerMu.Lock()
	listeners := make([]func(), len(c.listeners))
	copy(listeners, c.listeners)
	c.listenerMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Cameras는 마지막으로 알려진 카메라 목록의 복사본을 반환합니다
func (c *CameraCoordinator) Cameras() []client.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cameras := make([]client.Device, len(c.cameras))
	copy(cameras, c.cameras)
	return cameras
}

// Camera는 ID로 카메라를 조회합니다
func (c *CameraCoordinator) Camera(id string) (client.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, cam := range c.cameras {
		if cam.ID == id {
			return cam, true
		}
	}
	return client.Device{}, false
}

// Stale은 마지막 갱신이 실패했는지 여부를 반환합니다
func (c *CameraCoordinator) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}

// AuthFailed는 마지막 갱신이 인증 거부로 실패했는지 여부를 반환합니다.
// 재인증에 성공한 갱신이 올 때까지 모든 엔티티는 unavailable로 처리됩니다.
func (c *CameraCoordinator) AuthFailed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authFailed
}

// LastSuccess는 마지막 성공한 갱신 시각을 반환합니다
func (c *CameraCoordinator) LastSuccess() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// Refresh는 카메라 목록을 즉시 갱신합니다. 실패 시 기존 데이터는
// 유지됩니다 (블랭킹 없음).
func (c *CameraCoordinator) Refresh(ctx context.Context) error {
	cameras, err := c.api.GetCameras(ctx)
	if err != nil {
		var authErr *client.AuthError
		c.mu.Lock()
		c.stale = true
		if errors.As(err, &authErr) {
			c.authFailed = true
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.cameras = cameras
	c.stale = false
	c.authFailed = false
	c.lastSuccess = time.Now()
	c.mu.Unlock()

	c.notifyListeners()
	return nil
}

// Run은 폴링 루프를 실행합니다. 어떤 에러도 루프를 종료시키지 않습니다.
func (c *CameraCoordinator) Run(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("Initial camera refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Camera coordinator stopped")
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("Camera refresh failed, keeping last data", zap.Error(err))
			}
		}
	}
}
