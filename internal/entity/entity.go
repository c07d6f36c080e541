package entity

import (
	"github.com/yourusername/dwbridge/internal/client"
)

// DeviceInfo는 Home Assistant 디바이스 레지스트리용 정보
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// CameraState는 카메라 엔티티의 현재 상태 스냅샷
type CameraState struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Model             string               `json:"model"`
	Online            bool                 `json:"online"`
	Stale             bool                 `json:"stale"`
	StreamBlocked     bool                 `json:"stream_blocked"`
	StreamURL         string               `json:"stream_url,omitempty"`
	SecondaryURL      string               `json:"secondary_url,omitempty"`
	RecordingDisabled bool                 `json:"recording_disabled"`
	RecordingMode     client.RecordingMode `json:"recording_mode"`
	Degraded          bool                 `json:"degraded"`
	StreamOK          *bool                `json:"stream_ok,omitempty"`
	Unavailable       bool                 `json:"unavailable,omitempty"`
}

// UserState는 사용자 스위치 엔티티의 현재 상태 스냅샷
type UserState struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Type        string `json:"type,omitempty"`
	IsCloud     bool   `json:"is_cloud"`
	Enabled     bool   `json:"enabled"`
	Stale       bool   `json:"stale"`
	Degraded    bool   `json:"degraded"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// SensorValues는 읽기 전용 숫자 센서 값 묶음.
// 라이선스 값은 서버가 보고하지 않으면 nil입니다.
type SensorValues struct {
	CameraCount      int  `json:"camera_count"`
	LicenseTotal     *int `json:"license_total"`
	LicenseUsed      *int `json:"license_used"`
	LicenseAvailable *int `json:"license_available"`
	Stale            bool `json:"stale"`
	Unavailable      bool `json:"unavailable,omitempty"`
}

// CameraDeviceInfo는 카메라의 디바이스 정보를 생성합니다
func CameraDeviceInfo(cam client.Device) DeviceInfo {
	model := cam.Model
	if model == "" {
		model = "Camera"
	}
	return DeviceInfo{
		Identifiers:  []string{"camera_" + cam.ID},
		Name:         cam.DisplayName(),
		Manufacturer: "Digital Watchdog",
		Model:        model,
	}
}

// ServerDeviceInfo는 서버의 디바이스 정보를 생성합니다
func ServerDeviceInfo(info *client.SystemInfo, fallbackID string) DeviceInfo {
	id := fallbackID
	name := "DW Spectrum Server"
	if info != nil {
		if serverID := info.ServerID(); serverID != "" {
			id = serverID
		}
		if info.Name != "" {
			name = info.Name
		}
	}
	return DeviceInfo{
		Identifiers:  []string{id},
		Name:         name,
		Manufacturer: "Digital Watchdog",
		Model:        "DW Spectrum Server",
	}
}
