package mqtt

import (
	"fmt"

	"github.com/yourusername/dwbridge/internal/entity"
)

// deviceInfo는 HA 디바이스 레지스트리 정보 (discovery 축약 키)
type deviceInfo struct {
	Identifiers  []string `json:"ids"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"mf"`
	Model        string   `json:"mdl"`
}

// discoveryPayload는 HA MQTT discovery config 페이로드
type discoveryPayload struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"uniq_id"`
	StateTopic        string     `json:"stat_t,omitempty"`
	CommandTopic      string     `json:"cmd_t,omitempty"`
	AvailabilityTopic string     `json:"avty_t"`
	PayloadOn         string     `json:"pl_on,omitempty"`
	PayloadOff        string     `json:"pl_off,omitempty"`
	Topic             string     `json:"t,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_meas,omitempty"`
	StateClass        string     `json:"stat_cla,omitempty"`
	Icon              string     `json:"ic,omitempty"`
	Device            deviceInfo `json:"dev"`
}

func toDeviceInfo(info entity.DeviceInfo) deviceInfo {
	return deviceInfo{
		Identifiers:  info.Identifiers,
		Name:         info.Name,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
	}
}

// 카메라별 스위치 정의 (stream_blocked는 로컬, 나머지는 서버 쓰기)
type cameraSwitch struct {
	key  string
	name string
	icon string
}

var cameraSwitches = []cameraSwitch{
	{key: "stream_blocked", name: "Block Live Stream", icon: "mdi:cctv-off"},
	{key: "recording_disabled", name: "Recording Disabled", icon: "mdi:record-off"},
	{key: "mode_always", name: "Always Record", icon: "mdi:record-rec"},
	{key: "mode_motion", name: "Motion Only", icon: "mdi:record-rec"},
	{key: "mode_motion_low", name: "Motion + Low Res", icon: "mdi:record-rec"},
}

// 브리지 전역 센서 정의
type sensorDef struct {
	key  string
	name string
	unit string
	icon string
}

var serverSensors = []sensorDef{
	{key: "camera_count", name: "Camera Count", unit: "cameras", icon: "mdi:cctv"},
	{key: "license_total", name: "Licenses Total", unit: "licenses", icon: "mdi:license"},
	{key: "license_used", name: "Licenses Used", unit: "licenses", icon: "mdi:license"},
	{key: "license_available", name: "Licenses Available", unit: "licenses", icon: "mdi:license"},
}

// Topic 생성 헬퍼

func (b *Bridge) availabilityTopic() string {
	return b.cfg.BaseTopic + "/status"
}

func (b *Bridge) cameraStateTopic(cameraID, key string) string {
	return fmt.Sprintf("%s/camera/%s/%s/state", b.cfg.BaseTopic, cameraID, key)
}

func (b *Bridge) cameraCommandTopic(cameraID, key string) string {
	return fmt.Sprintf("%s/camera/%s/%s/set", b.cfg.BaseTopic, cameraID, key)
}

func (b *Bridge) cameraImageTopic(cameraID string) string {
	return fmt.Sprintf("%s/camera/%s/image", b.cfg.BaseTopic, cameraID)
}

func (b *Bridge) userStateTopic(userID string) string {
	return fmt.Sprintf("%s/user/%s/enabled/state", b.cfg.BaseTopic, userID)
}

func (b *Bridge) userCommandTopic(userID string) string {
	return fmt.Sprintf("%s/user/%s/enabled/set", b.cfg.BaseTopic, userID)
}

func (b *Bridge) sensorStateTopic(key string) string {
	return fmt.Sprintf("%s/sensor/%s/state", b.cfg.BaseTopic, key)
}

func (b *Bridge) cameraSwitchConfigTopic(cameraID, key string) string {
	return fmt.Sprintf("%s/switch/%s_cam_%s/%s/config", b.cfg.DiscoveryPrefix, b.cfg.BaseTopic, cameraID, key)
}

func (b *Bridge) cameraConfigTopic(cameraID string) string {
	return fmt.Sprintf("%s/camera/%s_cam_%s/snapshot/config", b.cfg.DiscoveryPrefix, b.cfg.BaseTopic, cameraID)
}

func (b *Bridge) userConfigTopic(userID string) string {
	return fmt.Sprintf("%s/switch/%s_user_%s/enabled/config", b.cfg.DiscoveryPrefix, b.cfg.BaseTopic, userID)
}

func (b *Bridge) sensorConfigTopic(key string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", b.cfg.DiscoveryPrefix, b.cfg.BaseTopic, key)
}
