package entity

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/client"
	"github.com/yourusername/dwbridge/internal/coordinator"
	"github.com/yourusername/dwbridge/internal/core"
)

// CameraAPI는 카메라 어댑터가 사용하는 클라이언트 작업 집합
type CameraAPI interface {
	StreamURL(cameraID string, streamIndex int) string
	GetDeviceImage(ctx context.Context, deviceID string) ([]byte, error)
	SetCameraRecordingMode(ctx context.Context, deviceID string, mode client.RecordingMode) error
	SetCameraScheduleEnabled(ctx context.Context, deviceID string, enabled bool) error
}

// Cameras는 카메라/스위치 엔티티 어댑터입니다. 서버 상태 위에 로컬
// 오버레이(스트림 차단, 녹화 모드 캐시)를 합쳐 노출합니다.
type Cameras struct {
	api    CameraAPI
	coord  *coordinator.CameraCoordinator
	store  *core.StateStore
	writer *coordinator.Writer
	logger *zap.Logger

	// 스트림 프로브 결과 (카메라 ID -> 도달 가능 여부)
	probeMu sync.RWMutex
	probeOK map[string]bool

	// 로컬 상태 변경 알림 (코디네이터를 거치지 않는 변경용)
	onChange func()
}

// CamerasConfig는 카메라 어댑터 설정
type CamerasConfig struct {
	API      CameraAPI
	Coord    *coordinator.CameraCoordinator
	Store    *core.StateStore
	Writer   *coordinator.Writer
	Logger   *zap.Logger
	OnChange func()
}

// NewCameras는 새로운 카메라 어댑터를 생성합니다
func NewCameras(cfg CamerasConfig) *Cameras {
	return &Cameras{
		api:      cfg.API,
		coord:    cfg.Coord,
		store:    cfg.Store,
		writer:   cfg.Writer,
		logger:   cfg.Logger,
		probeOK:  make(map[string]bool),
		onChange: cfg.OnChange,
	}
}

func (c *Cameras) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

// States는 모든 카메라의 상태 스냅샷을 반환합니다
func (c *Cameras) States() []CameraState {
	cameras := c.coord.Cameras()
	stale := c.coord.Stale()

	states := make([]CameraState, 0, len(cameras))
	for _, cam := range cameras {
		states = append(states, c.buildState(cam, stale))
	}
	return states
}

// State는 ID로 카메라 상태를 조회합니다
func (c *Cameras) State(cameraID string) (CameraState, bool) {
	cam, ok := c.coord.Camera(cameraID)
	if !ok {
		return CameraState{}, false
	}
	return c.buildState(cam, c.coord.Stale()), true
}

func (c *Cameras) buildState(cam client.Device, stale bool) CameraState {
	blocked := c.store.StreamBlocked(cam.ID)

	state := CameraState{
		ID:            cam.ID,
		Name:          cam.DisplayName(),
		Model:         cam.Model,
		Online:        cam.Online(),
		Stale:         stale,
		StreamBlocked: blocked,
		RecordingMode: client.RecordingUnknown,
		Degraded:      c.writer.Degraded(writeKey(cam.ID)),
		Unavailable:   c.coord.AuthFailed(),
	}

	if cam.Schedule != nil {
		state.RecordingDisabled = !cam.Schedule.IsEnabled
		if cam.Schedule.IsEnabled {
			state.RecordingMode = cam.Schedule.Mode()
		}
	} else {
		state.RecordingDisabled = true
	}

	// 차단된 카메라는 스트림 URL을 절대 노출하지 않음
	if !blocked {
		state.StreamURL = c.api.StreamURL(cam.ID, 0)
		state.SecondaryURL = c.api.StreamURL(cam.ID, 1)

		c.probeMu.RLock()
		if ok, probed := c.probeOK[cam.ID]; probed {
			v := ok
			state.StreamOK = &v
		}
		c.probeMu.RUnlock()
	}

	return state
}

// Snapshot은 카메라의 JPEG 스냅샷을 반환합니다.
// 스트림이 차단된 카메라는 스냅샷도 제공하지 않습니다.
func (c *Cameras) Snapshot(ctx context.Context, cameraID string) ([]byte, error) {
	if _, ok := c.coord.Camera(cameraID); !ok {
		return nil, &client.NotFoundError{Resource: "camera", ID: cameraID}
	}

	if c.store.StreamBlocked(cameraID) {
		return nil, nil
	}

	return c.api.GetDeviceImage(ctx, cameraID)
}

// SetStreamBlocked는 스트림 차단 플래그를 토글합니다. 로컬 상태만
// 변경하며 서버 호출은 없습니다.
func (c *Cameras) SetStreamBlocked(cameraID string, blocked bool) error {
	if _, ok := c.coord.Camera(cameraID); !ok {
		return &client.NotFoundError{Resource: "camera", ID: cameraID}
	}

	if err := c.store.SetStreamBlocked(cameraID, blocked); err != nil {
		return err
	}

	c.notify()
	return nil
}

// SetRecordingMode는 녹화 모드를 변경합니다. 캐시 갱신과 서버 전달은
// 같은 카메라 lock 안에서 수행되어 순서가 어긋나지 않습니다.
func (c *Cameras) SetRecordingMode(ctx context.Context, cameraID string, mode client.RecordingMode) error {
	if !client.ValidRecordingMode(mode) {
		return fmt.Errorf("unknown recording mode: %s", mode)
	}
	if _, ok := c.coord.Camera(cameraID); !ok {
		return &client.NotFoundError{Resource: "camera", ID: cameraID}
	}

	err := c.writer.Do(ctx, writeKey(cameraID), func(ctx context.Context) error {
		// 낙관적 캐시 갱신 후 서버 전달 (둘 다 lock 안)
		if err := c.store.SetRecordingMode(cameraID, string(mode)); err != nil {
			return err
		}
		return c.api.SetCameraRecordingMode(ctx, cameraID, mode)
	})
	if err != nil {
		return err
	}

	c.refreshAfterWrite(ctx)
	return nil
}

// SetRecordingDisabled는 녹화를 중지/재개합니다. 중지 시 현재 모드를
// 캐시해 두었다가 재개 시 복원합니다.
func (c *Cameras) SetRecordingDisabled(ctx context.Context, cameraID string, disabled bool) error {
	if _, ok := c.coord.Camera(cameraID); !ok {
		return &client.NotFoundError{Resource: "camera", ID: cameraID}
	}

	if disabled {
		err := c.writer.Do(ctx, writeKey(cameraID), func(ctx context.Context) error {
			// 현재 모드를 기억해 둠 (재개 시 복원용). 모드 읽기와
			// 캐시 저장도 같은 카메라 lock 안에서 수행합니다.
			if cam, ok := c.coord.Camera(cameraID); ok && cam.Schedule != nil && cam.Schedule.IsEnabled {
				if mode := cam.Schedule.Mode(); client.ValidRecordingMode(mode) {
					if err := c.store.SetRecordingMode(cameraID, string(mode)); err != nil {
						return err
					}
				}
			}
			return c.api.SetCameraScheduleEnabled(ctx, cameraID, false)
		})
		if err != nil {
			return err
		}
	} else {
		err := c.writer.Do(ctx, writeKey(cameraID), func(ctx context.Context) error {
			// 캐시된 모드로 복원, 없으면 always
			mode := client.RecordingAlways
			if cached, ok := c.store.RecordingMode(cameraID); ok && client.ValidRecordingMode(client.RecordingMode(cached)) {
				mode = client.RecordingMode(cached)
			}
			if err := c.api.SetCameraRecordingMode(ctx, cameraID, mode); err != nil {
				return err
			}
			return c.store.SetRecordingMode(cameraID, string(mode))
		})
		if err != nil {
			return err
		}
	}

	c.refreshAfterWrite(ctx)
	return nil
}

// Unavailable는 인증 거부로 엔티티 전체를 노출할 수 없는 상태인지 반환합니다
func (c *Cameras) Unavailable() bool {
	return c.coord.AuthFailed()
}

// SetStreamOK는 프로브 결과를 기록합니다
func (c *Cameras) SetStreamOK(cameraID string, ok bool) {
	c.probeMu.Lock()
	c.probeOK[cameraID] = ok
	c.probeMu.Unlock()
}

// refreshAfterWrite는 쓰기 성공 후 코디네이터를 갱신합니다 (best-effort)
func (c *Cameras) refreshAfterWrite(ctx context.Context) {
	if err := c.coord.Refresh(ctx); err != nil {
		c.logger.Debug("Refresh after write failed", zap.Error(err))
	}
}

func writeKey(cameraID string) string {
	return "camera:" + cameraID
}
