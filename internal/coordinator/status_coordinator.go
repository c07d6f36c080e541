package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// statusConcurrency는 카메라 status 동시 조회 상한
const statusConcurrency = 8

// StatusCoordinator는 카메라별 /status를 병렬로 조회합니다.
// 개별 카메라의 실패는 해당 카메라의 이전 status만 유지합니다.
type StatusCoordinator struct {
	api      API
	cams     *CameraCoordinator
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	statuses map[string]map[string]interface{}
}

// NewStatusCoordinator는 새로운 status 코디네이터를 생성합니다
func NewStatusCoordinator(api API, cams *CameraCoordinator, interval time.Duration, logger *zap.Logger) *StatusCoordinator {
	return &StatusCoordinator{
		api:      api,
		cams:     cams,
		interval: interval,
		logger:   logger,
		statuses: make(map[string]map[string]interface{}),
	}
}

// Status는 카메라의 마지막 status를 반환합니다
func (c *StatusCoordinator) Status(cameraID string) (map[string]interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status, ok := c.statuses[cameraID]
	return status, ok
}

// Refresh는 알려진 모든 카메라의 status를 갱신합니다
func (c *StatusCoordinator) Refresh(ctx context.Context) {
	cameras := c.cams.Cameras()

	sem := make(chan struct{}, statusConcurrency)
	var wg sync.WaitGroup

	results := make(map[string]map[string]interface{}, len(cameras))
	var resultMu sync.Mutex

	for _, cam := range cameras {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			status, err := c.api.GetDeviceStatus(ctx, id)
			if err != nil {
				c.logger.Debug("Status fetch failed", zap.String("camera_id", id), zap.Error(err))
				return
			}

			resultMu.Lock()
			results[id] = status
			resultMu.Unlock()
		}(cam.ID)
	}

	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	// 성공한 카메라만 갱신, 실패한 카메라는 이전 값 유지
	for id, status := range results {
		c.statuses[id] = status
	}

	// 사라진 카메라의 status 제거
	known := make(map[string]bool, len(cameras))
	for _, cam := range cameras {
		known[cam.ID] = true
	}
	for id := range c.statuses {
		if !known[id] {
			delete(c.statuses, id)
		}
	}
}

// Run은 폴링 루프를 실행합니다
func (c *StatusCoordinator) Run(ctx context.Context) {
	c.Refresh(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Status coordinator stopped")
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}
