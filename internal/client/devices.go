package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// RecordingMode is the per-camera recording policy
type RecordingMode string

const (
	RecordingAlways    RecordingMode = "always"
	RecordingMotion    RecordingMode = "motion"
	RecordingMotionLow RecordingMode = "motion_low"

	// RecordingUnknown is reported when the schedule tasks do not match
	// any mode this bridge writes.
	RecordingUnknown RecordingMode = "unknown"
)

// ValidRecordingMode reports whether m is a mode the server accepts
func ValidRecordingMode(m RecordingMode) bool {
	return m == RecordingAlways || m == RecordingMotion || m == RecordingMotionLow
}

// ScheduleTask is one slot of a camera's weekly recording schedule
type ScheduleTask struct {
	DayOfWeek     int    `json:"dayOfWeek"`
	StartTime     int    `json:"startTime"`
	EndTime       int    `json:"endTime"`
	FPS           int    `json:"fps"`
	BitrateKbps   int    `json:"bitrateKbps"`
	RecordingType string `json:"recordingType"`
	MetadataTypes string `json:"metadataTypes"`
	StreamQuality string `json:"streamQuality"`
}

// Schedule is a camera's recording schedule
type Schedule struct {
	IsEnabled bool           `json:"isEnabled"`
	Tasks     []ScheduleTask `json:"tasks"`
}

// Mode derives the recording mode from the schedule tasks. Returns
// RecordingUnknown when the tasks are mixed or hand-edited on the server.
func (s *Schedule) Mode() RecordingMode {
	if s == nil || len(s.Tasks) == 0 {
		return RecordingUnknown
	}

	recTypes := map[string]bool{}
	metaTypes := map[string]bool{}
	for _, t := range s.Tasks {
		recTypes[strings.TrimSpace(t.RecordingType)] = true
		metaTypes[strings.TrimSpace(t.MetadataTypes)] = true
	}

	only := func(m map[string]bool, v string) bool {
		return len(m) == 1 && m[v]
	}

	switch {
	case only(recTypes, "always") && only(metaTypes, "none"):
		return RecordingAlways
	case only(recTypes, "metadataOnly") && only(metaTypes, "motion"):
		return RecordingMotion
	case only(recTypes, "metadataAndLowQuality") && only(metaTypes, "motion"):
		return RecordingMotionLow
	}
	return RecordingUnknown
}

// Device is a DW Spectrum device as returned by /rest/v3/devices
type Device struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	DeviceType string    `json:"deviceType"`
	Type       string    `json:"type"`
	Model      string    `json:"model"`
	PhysicalID string    `json:"physicalId"`
	LogicalID  string    `json:"logicalId"`
	IsOnline   *bool     `json:"isOnline"`
	Status     string    `json:"status"`
	Schedule   *Schedule `json:"schedule"`
}

// DisplayName returns the best human-readable name for the device
func (d *Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	if d.LogicalID != "" {
		return d.LogicalID
	}
	return d.ID
}

// Online reports device availability. Devices without an isOnline field
// fall back to the status string.
func (d *Device) Online() bool {
	if d.IsOnline != nil {
		return *d.IsOnline
	}
	return strings.EqualFold(d.Status, "online") || strings.EqualFold(d.Status, "recording")
}

// IsCamera reports whether the device is a camera
func (d *Device) IsCamera() bool {
	if strings.EqualFold(d.DeviceType, "camera") {
		return true
	}
	return strings.Contains(strings.ToLower(d.Type), "camera")
}

const deviceFields = "id,name,deviceType,type,model,physicalId,logicalId,isOnline,status,schedule"

// GetDevices lists all devices known to the server
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	params := url.Values{}
	params.Set("_with", deviceFields)

	var raw json.RawMessage
	if err := c.requestJSON(ctx, "GET", "/rest/v3/devices", params, nil, &raw); err != nil {
		return nil, err
	}

	devices, err := decodeList[Device](raw, "items", "data", "devices")
	if err != nil {
		return nil, transportErrf("GET /rest/v3/devices", "unexpected response shape: %w", err)
	}
	return devices, nil
}

// GetCameras lists the devices that are cameras
func (c *Client) GetCameras(ctx context.Context) ([]Device, error) {
	devices, err := c.GetDevices(ctx)
	if err != nil {
		return nil, err
	}

	cameras := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.IsCamera() {
			cameras = append(cameras, d)
		}
	}
	return cameras, nil
}

// GetDevice fetches a single device with its schedule
func (c *Client) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	params := url.Values{}
	params.Set("_with", "id,name,schedule")

	var dev Device
	err := c.requestJSON(ctx, "GET", "/rest/v3/devices/"+deviceID, params, nil, &dev)
	if err != nil {
		return nil, remapNotFound(err, "device", deviceID)
	}
	return &dev, nil
}

// GetDeviceStatus fetches the runtime status blob for a device
func (c *Client) GetDeviceStatus(ctx context.Context, deviceID string) (map[string]interface{}, error) {
	var status map[string]interface{}
	err := c.requestJSON(ctx, "GET", "/rest/v3/devices/"+deviceID+"/status", nil, nil, &status)
	if err != nil {
		return nil, remapNotFound(err, "device", deviceID)
	}
	return status, nil
}

// GetDeviceImage fetches a JPEG snapshot for a device
func (c *Client) GetDeviceImage(ctx context.Context, deviceID string) ([]byte, error) {
	data, err := c.requestBytes(ctx, "GET", "/rest/v3/devices/"+deviceID+"/image", "image/jpeg,image/png,*/*")
	if err != nil {
		return nil, remapNotFound(err, "device", deviceID)
	}
	return data, nil
}

// PatchDevice applies a partial update to a device
func (c *Client) PatchDevice(ctx context.Context, deviceID string, body map[string]interface{}) error {
	err := c.requestJSON(ctx, "PATCH", "/rest/v3/devices/"+deviceID, nil, body, nil)
	return remapNotFound(err, "device", deviceID)
}

// SetCameraScheduleEnabled starts or stops recording for a camera. This is
// the supported REST v3 start/stop recording mechanism.
func (c *Client) SetCameraScheduleEnabled(ctx context.Context, deviceID string, enabled bool) error {
	return c.PatchDevice(ctx, deviceID, map[string]interface{}{
		"schedule": map[string]interface{}{"isEnabled": enabled},
	})
}

// SetCameraRecordingMode rewrites the camera's schedule tasks for the given
// mode and enables the schedule. Cameras without a schedule get a full-week
// 24 fps template first.
func (c *Client) SetCameraRecordingMode(ctx context.Context, deviceID string, mode RecordingMode) error {
	if !ValidRecordingMode(mode) {
		return fmt.Errorf("unknown recording mode: %s", mode)
	}

	dev, err := c.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	var tasks []ScheduleTask
	if dev.Schedule != nil {
		tasks = dev.Schedule.Tasks
	}
	if len(tasks) == 0 {
		tasks = defaultScheduleTasks()
	}

	var recordingType, metadataTypes string
	switch mode {
	case RecordingAlways:
		recordingType, metadataTypes = "always", "none"
	case RecordingMotion:
		recordingType, metadataTypes = "metadataOnly", "motion"
	case RecordingMotionLow:
		recordingType, metadataTypes = "metadataAndLowQuality", "motion"
	}

	rewritten := make([]ScheduleTask, len(tasks))
	for i, t := range tasks {
		nt := normalizeTask(t)
		nt.RecordingType = recordingType
		nt.MetadataTypes = metadataTypes
		rewritten[i] = nt
	}

	return c.PatchDevice(ctx, deviceID, map[string]interface{}{
		"schedule": map[string]interface{}{
			"isEnabled": true,
			"tasks":     rewritten,
		},
	})
}

// StreamURL builds the server-proxied RTSP URL for a camera.
// Stream index 0 is the primary stream, 1 the secondary.
func (c *Client) StreamURL(cameraID string, streamIndex int) string {
	u := &url.URL{
		Scheme:   "rtsp",
		Host:     fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port),
		Path:     "/" + strings.Trim(strings.TrimSpace(cameraID), "{}"),
		RawQuery: fmt.Sprintf("stream=%d", streamIndex),
	}
	if c.cfg.Username != "" || c.cfg.Password != "" {
		// url.UserPassword handles userinfo escaping (%20 for spaces, not +)
		u.User = url.UserPassword(c.cfg.Username, c.cfg.Password)
	}
	return u.String()
}

func defaultScheduleTasks() []ScheduleTask {
	tasks := make([]ScheduleTask, 0, 7)
	for dow := 1; dow <= 7; dow++ {
		tasks = append(tasks, ScheduleTask{
			DayOfWeek:     dow,
			StartTime:     0,
			EndTime:       86400,
			FPS:           24,
			RecordingType: "always",
			MetadataTypes: "none",
			StreamQuality: "highest",
		})
	}
	return tasks
}

// normalizeTask fills the fields the PATCH endpoint requires on every task
func normalizeTask(t ScheduleTask) ScheduleTask {
	if t.MetadataTypes == "" {
		t.MetadataTypes = "none"
	}
	if t.StreamQuality == "" {
		t.StreamQuality = "highest"
	}
	if t.EndTime == 0 {
		t.EndTime = 86400
	}
	if t.DayOfWeek == 0 {
		t.DayOfWeek = 1
	}
	return t
}

// decodeList decodes a response that is either a bare JSON array or an
// object wrapping the array under one of the given keys
func decodeList[T any](raw json.RawMessage, keys ...string) ([]T, error) {
	var list []T
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, err
	}

	for _, key := range keys {
		inner, ok := wrapper[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &list); err == nil {
			return list, nil
		}
	}
	return nil, errors.New("no recognizable list field")
}

func remapNotFound(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return err
}
