package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/client"
	"github.com/yourusername/dwbridge/internal/coordinator"
	"github.com/yourusername/dwbridge/internal/entity"
)

const (
	payloadOn      = "ON"
	payloadOff     = "OFF"
	publishTimeout = 5 * time.Second
)

// Config는 MQTT 브리지 설정
type Config struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	DiscoveryPrefix string
	BaseTopic       string
}

// Bridge는 엔티티 상태를 Home Assistant MQTT discovery로 노출합니다.
// discovery config는 retained로 발행하고, 사라진 엔티티의 config는
// 빈 페이로드로 철회합니다.
type Bridge struct {
	cfg    Config
	mqtt   pahomqtt.Client
	logger *zap.Logger

	cameras *entity.Cameras
	users   *entity.Users
	sensors *entity.Sensors
	server  *coordinator.ServerCoordinator

	// 발행한 discovery config 추적 (철회용). 발행 경로는 리스너와
	// 명령 핸들러 양쪽에서 호출되므로 mutex로 직렬화합니다.
	stateMu      sync.Mutex
	knownCameras map[string]bool
	knownUsers   map[string]bool
	sensorsReady bool
	authOffline  bool
}

// NewBridge는 새로운 MQTT 브리지를 생성합니다
func NewBridge(cfg Config, cameras *entity.Cameras, users *entity.Users, sensors *entity.Sensors, server *coordinator.ServerCoordinator, logger *zap.Logger) *Bridge {
	return &Bridge{
		cfg:          cfg,
		logger:       logger,
		cameras:      cameras,
		users:        users,
		sensors:      sensors,
		server:       server,
		knownCameras: make(map[string]bool),
		knownUsers:   make(map[string]bool),
	}
}

// Start는 브로커에 연결하고 discovery/구독을 설정합니다
func (b *Bridge) Start() error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetUsername(b.cfg.Username).
		SetPassword(b.cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		// LWT: 브리지가 죽으면 모든 엔티티가 unavailable 처리됨
		SetWill(b.availabilityTopic(), "offline", 1, true)

	opts.OnConnect = func(c pahomqtt.Client) {
		b.logger.Info("Connected to MQTT broker", zap.String("broker", b.cfg.Broker))
		b.publish(b.availabilityTopic(), "online", true)
		b.subscribeCommands()
		b.PublishStates()
	}
	opts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		b.logger.Warn("MQTT connection lost", zap.Error(err))
	}

	b.mqtt = pahomqtt.NewClient(opts)

	token := b.mqtt.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// ConnectRetry가 백그라운드에서 계속 시도함
		b.logger.Warn("MQTT broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// Stop은 offline 발행 후 연결을 종료합니다
func (b *Bridge) Stop() {
	if b.mqtt == nil || !b.mqtt.IsConnected() {
		return
	}
	b.publish(b.availabilityTopic(), "offline", true)
	b.mqtt.Disconnect(250)
	b.logger.Info("Disconnected from MQTT broker")
}

// PublishStates는 discovery config를 동기화하고 모든 엔티티 상태를
// 발행합니다. 코디네이터 갱신 때마다 호출됩니다.
func (b *Bridge) PublishStates() {
	if b.mqtt == nil || !b.mqtt.IsConnected() {
		return
	}

	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	// 인증 거부 중에는 공유 availability 토픽을 offline으로 내려
	// 모든 엔티티를 unavailable로 전환하고, 복구되면 online으로 되돌림
	if b.cameras.Unavailable() || b.server.AuthFailed() {
		if !b.authOffline {
			b.logger.Warn("Authentication rejected, marking all entities unavailable")
			b.publish(b.availabilityTopic(), "offline", true)
			b.authOffline = true
		}
		return
	}
	if b.authOffline {
		b.publish(b.availabilityTopic(), "online", true)
		b.authOffline = false
	}

	b.syncCameraDiscovery()
	b.syncUserDiscovery()
	b.syncSensorDiscovery()

	for _, state := range b.cameras.States() {
		b.publishCameraState(state)
	}
	for _, state := range b.users.States() {
		b.publish(b.userStateTopic(state.ID), boolPayload(state.Enabled), true)
	}

	values := b.sensors.Values()
	b.publish(b.sensorStateTopic("camera_count"), fmt.Sprintf("%d", values.CameraCount), true)
	b.publishOptionalInt("license_total", values.LicenseTotal)
	b.publishOptionalInt("license_used", values.LicenseUsed)
	b.publishOptionalInt("license_available", values.LicenseAvailable)
}

// PublishSnapshots는 차단되지 않은 카메라의 스냅샷을 발행합니다
func (b *Bridge) PublishSnapshots(ctx context.Context) {
	if b.mqtt == nil || !b.mqtt.IsConnected() {
		return
	}

	for _, state := range b.cameras.States() {
		if ctx.Err() != nil {
			return
		}
		if state.StreamBlocked || !state.Online {
			continue
		}

		image, err := b.cameras.Snapshot(ctx, state.ID)
		if err != nil || len(image) == 0 {
			continue
		}
		b.mqtt.Publish(b.cameraImageTopic(state.ID), 0, false, image)
	}
}

func (b *Bridge) publishCameraState(state entity.CameraState) {
	b.publish(b.cameraStateTopic(state.ID, "stream_blocked"), boolPayload(state.StreamBlocked), true)
	b.publish(b.cameraStateTopic(state.ID, "recording_disabled"), boolPayload(state.RecordingDisabled), true)

	for _, mode := range []client.RecordingMode{client.RecordingAlways, client.RecordingMotion, client.RecordingMotionLow} {
		on := !state.RecordingDisabled && state.RecordingMode == mode
		b.publish(b.cameraStateTopic(state.ID, "mode_"+string(mode)), boolPayload(on), true)
	}
}

// syncCameraDiscovery는 카메라 discovery config를 동기화합니다
func (b *Bridge) syncCameraDiscovery() {
	current := make(map[string]bool)

	for _, state := range b.cameras.States() {
		current[state.ID] = true
		if b.knownCameras[state.ID] {
			continue
		}

		device := deviceInfo{
			Identifiers:  []string{"camera_" + state.ID},
			Name:         state.Name,
			Manufacturer: "Digital Watchdog",
			Model:        state.Model,
		}
		if device.Model == "" {
			device.Model = "Camera"
		}

		for _, sw := range cameraSwitches {
			b.publishConfig(b.cameraSwitchConfigTopic(state.ID, sw.key), discoveryPayload{
				Name:              state.Name + " " + sw.name,
				UniqueID:          fmt.Sprintf("%s_cam_%s_%s", b.cfg.BaseTopic, state.ID, sw.key),
				StateTopic:        b.cameraStateTopic(state.ID, sw.key),
				CommandTopic:      b.cameraCommandTopic(state.ID, sw.key),
				AvailabilityTopic: b.availabilityTopic(),
				PayloadOn:         payloadOn,
				PayloadOff:        payloadOff,
				Icon:              sw.icon,
				Device:            device,
			})
		}

		b.publishConfig(b.cameraConfigTopic(state.ID), discoveryPayload{
			Name:              state.Name,
			UniqueID:          fmt.Sprintf("%s_cam_%s_snapshot", b.cfg.BaseTopic, state.ID),
			Topic:             b.cameraImageTopic(state.ID),
			AvailabilityTopic: b.availabilityTopic(),
			Device:            device,
		})

		b.knownCameras[state.ID] = true
		b.logger.Info("Published camera discovery", zap.String("camera_id", state.ID))
	}

	// 사라진 카메라의 config 철회
	for id := range b.knownCameras {
		if current[id] {
			continue
		}
		for _, sw := range cameraSwitches {
			b.publish(b.cameraSwitchConfigTopic(id, sw.key), "", true)
		}
		b.publish(b.cameraConfigTopic(id), "", true)
		delete(b.knownCameras, id)
		b.logger.Info("Withdrew camera discovery", zap.String("camera_id", id))
	}
}

// syncUserDiscovery는 사용자 스위치 discovery config를 동기화합니다
func (b *Bridge) syncUserDiscovery() {
	data := b.server.Data()
	serverDevice := toDeviceInfo(entity.ServerDeviceInfo(data.SystemInfo, b.cfg.BaseTopic))

	current := make(map[string]bool)
	for _, state := range b.users.States() {
		current[state.ID] = true
		if b.knownUsers[state.ID] {
			continue
		}

		b.publishConfig(b.userConfigTopic(state.ID), discoveryPayload{
			Name:              "User " + state.Name + " Enabled",
			UniqueID:          fmt.Sprintf("%s_user_%s_enabled", b.cfg.BaseTopic, state.ID),
			StateTopic:        b.userStateTopic(state.ID),
			CommandTopic:      b.userCommandTopic(state.ID),
			AvailabilityTopic: b.availabilityTopic(),
			PayloadOn:         payloadOn,
			PayloadOff:        payloadOff,
			Icon:              "mdi:account-check",
			Device:            serverDevice,
		})
		b.knownUsers[state.ID] = true
	}

	for id := range b.knownUsers {
		if current[id] {
			continue
		}
		b.publish(b.userConfigTopic(id), "", true)
		delete(b.knownUsers, id)
		b.logger.Info("Withdrew user discovery", zap.String("user_id", id))
	}
}

// syncSensorDiscovery는 서버 센서 discovery config를 발행합니다 (1회)
func (b *Bridge) syncSensorDiscovery() {
	if b.sensorsReady {
		return
	}

	data := b.server.Data()
	serverDevice := toDeviceInfo(entity.ServerDeviceInfo(data.SystemInfo, b.cfg.BaseTopic))

	for _, def := range serverSensors {
		b.publishConfig(b.sensorConfigTopic(def.key), discoveryPayload{
			Name:              def.name,
			UniqueID:          fmt.Sprintf("%s_%s", b.cfg.BaseTopic, def.key),
			StateTopic:        b.sensorStateTopic(def.key),
			AvailabilityTopic: b.availabilityTopic(),
			UnitOfMeasurement: def.unit,
			StateClass:        "measurement",
			Icon:              def.icon,
			Device:            serverDevice,
		})
	}
	b.sensorsReady = true
}

// subscribeCommands는 스위치 command 토픽을 구독합니다
func (b *Bridge) subscribeCommands() {
	cameraFilter := fmt.Sprintf("%s/camera/+/+/set", b.cfg.BaseTopic)
	userFilter := fmt.Sprintf("%s/user/+/enabled/set", b.cfg.BaseTopic)

	b.mqtt.Subscribe(cameraFilter, 1, func(c pahomqtt.Client, msg pahomqtt.Message) {
		go b.handleCameraCommand(msg.Topic(), string(msg.Payload()))
	})
	b.mqtt.Subscribe(userFilter, 1, func(c pahomqtt.Client, msg pahomqtt.Message) {
		go b.handleUserCommand(msg.Topic(), string(msg.Payload()))
	})
}

// handleCameraCommand는 카메라 스위치 명령을 처리합니다.
// 토픽 형식: {base}/camera/{id}/{key}/set
func (b *Bridge) handleCameraCommand(topic, payload string) {
	parts := strings.Split(topic, "/")
	if len(parts) < 5 {
		return
	}
	cameraID, key := parts[len(parts)-3], parts[len(parts)-2]
	on := strings.EqualFold(payload, payloadOn)

	// 쓰기 명령은 종료 중에도 완료되어야 하므로 background 컨텍스트 사용
	ctx := context.Background()

	var err error
	switch key {
	case "stream_blocked":
		err = b.cameras.SetStreamBlocked(cameraID, on)
	case "recording_disabled":
		err = b.cameras.SetRecordingDisabled(ctx, cameraID, on)
	case "mode_always", "mode_motion", "mode_motion_low":
		if !on {
			return // 모드 스위치 OFF는 무시 (다른 모드 ON으로만 전환)
		}
		mode := client.RecordingMode(strings.TrimPrefix(key, "mode_"))
		err = b.cameras.SetRecordingMode(ctx, cameraID, mode)
	default:
		return
	}

	if err != nil {
		b.logger.Error("Camera command failed",
			zap.String("camera_id", cameraID),
			zap.String("command", key),
			zap.Error(err),
		)
	}
	b.PublishStates()
}

// handleUserCommand는 사용자 스위치 명령을 처리합니다.
// 토픽 형식: {base}/user/{id}/enabled/set
func (b *Bridge) handleUserCommand(topic, payload string) {
	parts := strings.Split(topic, "/")
	if len(parts) < 5 {
		return
	}
	userID := parts[len(parts)-3]
	enabled := strings.EqualFold(payload, payloadOn)

	if err := b.users.SetEnabled(context.Background(), userID, enabled); err != nil {
		b.logger.Error("User command failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	b.PublishStates()
}

func (b *Bridge) publishConfig(topic string, payload discoveryPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Failed to marshal discovery config", zap.Error(err))
		return
	}
	b.publish(topic, string(data), true)
}

func (b *Bridge) publish(topic, payload string, retained bool) {
	token := b.mqtt.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		b.logger.Warn("MQTT publish timed out", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		b.logger.Error("MQTT publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (b *Bridge) publishOptionalInt(key string, value *int) {
	if value == nil {
		return
	}
	b.publish(b.sensorStateTopic(key), fmt.Sprintf("%d", *value), true)
}

func boolPayload(v bool) string {
	if v {
		return payloadOn
	}
	return payloadOff
}
