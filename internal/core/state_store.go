package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// CameraPrefs는 카메라별 로컬 오버레이 상태
type CameraPrefs struct {
	StreamBlocked bool   `json:"stream_blocked"`
	RecordingMode string `json:"recording_mode,omitempty"`
}

// StateStore는 카메라별 설정을 관리하고 파일에 영속화합니다.
// 서버 상태 위에 덮어쓰는 로컬 상태만 저장하며, set마다 동기적으로 저장됩니다.
type StateStore struct {
	cameras  map[string]CameraPrefs
	mu       sync.RWMutex
	filePath string
	logger   *zap.Logger
}

// NewStateStore는 새로운 StateStore를 생성하고 기존 상태 파일을 로드합니다
func NewStateStore(filePath string, logger *zap.Logger) *StateStore {
	store := &StateStore{
		cameras:  make(map[string]CameraPrefs),
		filePath: filePath,
		logger:   logger,
	}

	// 기존 상태 로드 시도
	if err := store.loadFromFile(); err != nil {
		logger.Warn("Failed to load state file, starting empty", zap.Error(err))
	}

	return store
}

// Prefs는 카메라의 로컬 상태를 가져옵니다. 알 수 없는 카메라는
// 기본값(차단 없음, 모드 캐시 없음)을 반환합니다.
func (s *StateStore) Prefs(cameraID string) CameraPrefs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cameras[cameraID]
}

// StreamBlocked는 스트림 차단 여부를 반환합니다
func (s *StateStore) StreamBlocked(cameraID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cameras[cameraID].StreamBlocked
}

// SetStreamBlocked는 스트림 차단 플래그를 설정하고 파일에 저장합니다
func (s *StateStore) SetStreamBlocked(cameraID string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := s.cameras[cameraID]
	prefs.StreamBlocked = blocked
	s.cameras[cameraID] = prefs

	if err := s.saveToFileUnsafe(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	s.logger.Info("Stream block flag updated",
		zap.String("camera_id", cameraID),
		zap.Bool("blocked", blocked),
	)
	return nil
}

// RecordingMode는 캐시된 녹화 모드를 반환합니다
func (s *StateStore) RecordingMode(cameraID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mode := s.cameras[cameraID].RecordingMode
	return mode, mode != ""
}

// SetRecordingMode는 녹화 모드를 캐시하고 파일에 저장합니다
func (s *StateStore) SetRecordingMode(cameraID, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := s.cameras[cameraID]
	prefs.RecordingMode = mode
	s.cameras[cameraID] = prefs

	if err := s.saveToFileUnsafe(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	s.logger.Info("Recording mode cached",
		zap.String("camera_id", cameraID),
		zap.String("mode", mode),
	)
	return nil
}

// Prune은 서버에서 사라진 카메라의 상태를 제거합니다
func (s *StateStore) Prune(knownIDs map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id := range s.cameras {
		if !knownIDs[id] {
			delete(s.cameras, id)
			removed++
		}
	}

	if removed == 0 {
		return nil
	}

	if err := s.saveToFileUnsafe(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	s.logger.Info("Pruned state for removed cameras", zap.Int("count", removed))
	return nil
}

// loadFromFile은 상태 파일을 로드합니다
func (s *StateStore) loadFromFile() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// 파일이 없으면 정상 (처음 실행)
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var persisted struct {
		Cameras map[string]CameraPrefs `json:"cameras"`
	}
	if err := json.Unmarshal(data, &persisted); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, prefs := range persisted.Cameras {
		s.cameras[id] = prefs
	}

	s.logger.Info("State file loaded", zap.Int("cameras", len(persisted.Cameras)))
	return nil
}

// saveToFileUnsafe는 mutex 없이 파일에 저장합니다 (내부용)
func (s *StateStore) saveToFileUnsafe() error {
	persisted := struct {
		Cameras map[string]CameraPrefs `json:"cameras"`
	}{Cameras: s.cameras}

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if dir := filepath.Dir(s.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}
