package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/api"
	"github.com/yourusername/dwbridge/internal/client"
	"github.com/yourusername/dwbridge/internal/coordinator"
	"github.com/yourusername/dwbridge/internal/core"
	"github.com/yourusername/dwbridge/internal/entity"
	"github.com/yourusername/dwbridge/internal/events"
	"github.com/yourusername/dwbridge/internal/mqtt"
	"github.com/yourusername/dwbridge/internal/probe"
	"github.com/yourusername/dwbridge/pkg/logger"
)

const (
	defaultConfigPath = "configs/config.yaml"
	version           = "0.1.0"
)

func main() {
	// 커맨드라인 플래그 파싱
	configPath := flag.String("config", defaultConfigPath, "설정 파일 경로")
	showVersion := flag.Bool("version", false, "버전 정보 출력")
	flag.Parse()

	// 버전 정보 출력
	if *showVersion {
		fmt.Printf("DW Spectrum Bridge v%s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// 설정 로드
	config, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 로거 초기화
	if err := logger.InitLogger(logger.LogConfig{
		Level:      config.Logging.Level,
		Output:     config.Logging.Output,
		FilePath:   config.Logging.FilePath,
		MaxSize:    config.Logging.MaxSize,
		MaxBackups: config.Logging.MaxBackups,
		MaxAge:     config.Logging.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 시작 로그
	logger.Info("Starting DW Spectrum Bridge",
		zap.String("version", version),
		zap.String("go_version", runtime.Version()),
	)

	// 설정 정보 출력
	logger.Info("Bridge configuration",
		zap.Int("http_port", config.Server.HTTPPort),
		zap.Bool("production", config.Server.Production),
		zap.String("dw_host", config.DW.Host),
		zap.Int("dw_port", config.DW.Port),
		zap.Bool("mqtt_enabled", config.MQTT.Enabled),
		zap.Bool("probe_enabled", config.Probe.Enabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 브리지 컴포넌트 초기화
	app, err := initializeApplication(ctx, config)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer app.cleanup()

	logger.Info("All components initialized successfully")

	// 종료 시그널 대기
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Bridge is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	logger.Info("Received shutdown signal",
		zap.String("signal", sig.String()),
	)

	// 폴링 루프 중단 (진행 중인 쓰기는 cleanup에서 완료를 기다림)
	cancel()

	logger.Info("Bridge stopped gracefully")
}

// Application은 브리지 컴포넌트들을 관리합니다
type Application struct {
	config   *core.Config
	dwClient *client.Client
	store    *core.StateStore
	writer   *coordinator.Writer

	camCoord    *coordinator.CameraCoordinator
	serverCoord *coordinator.ServerCoordinator
	statusCoord *coordinator.StatusCoordinator

	cameras *entity.Cameras
	users   *entity.Users
	sensors *entity.Sensors

	eventServer *events.Server
	apiServer   *api.Server
	mqttBridge  *mqtt.Bridge

	loops sync.WaitGroup
}

// initializeApplication은 브리지를 초기화합니다
func initializeApplication(ctx context.Context, config *core.Config) (*Application, error) {
	app := &Application{config: config}

	// 1. DW Spectrum 클라이언트 초기화 및 로그인
	app.dwClient = client.New(client.Config{
		Host:      config.DW.Host,
		Port:      config.DW.Port,
		SSL:       config.DW.SSL,
		VerifySSL: config.DW.VerifySSL,
		Username:  config.DW.Username,
		Password:  config.DW.Password,
		Logger:    logger.Log,
	})

	if _, err := app.dwClient.Login(ctx); err != nil {
		return nil, fmt.Errorf("failed to login to DW Spectrum server: %w", err)
	}
	logger.Info("Logged in to DW Spectrum server",
		zap.String("host", config.DW.Host),
	)

	// 2. 로컬 상태 저장소
	app.store = core.NewStateStore(config.State.FilePath, logger.Log)

	// 3. 쓰기 재시도 관리자
	app.writer = coordinator.NewWriter(
		config.Poll.WriteRetryCount,
		time.Duration(config.Poll.WriteRetryDelay)*time.Second,
		logger.Log,
	)

	// 4. 코디네이터
	app.camCoord = coordinator.NewCameraCoordinator(
		app.dwClient,
		time.Duration(config.Poll.CamerasInterval)*time.Second,
		logger.Log,
	)
	app.serverCoord = coordinator.NewServerCoordinator(
		app.dwClient,
		time.Duration(config.Poll.ServerInterval)*time.Second,
		logger.Log,
	)
	app.statusCoord = coordinator.NewStatusCoordinator(
		app.dwClient,
		app.camCoord,
		time.Duration(config.Poll.StatusInterval)*time.Second,
		logger.Log,
	)
	logger.Info("Coordinators initialized")

	// 5. 이벤트 서버 (WebSocket 피드)
	app.eventServer = events.NewServer(logger.Log)

	// 6. 엔티티 어댑터
	app.cameras = entity.NewCameras(entity.CamerasConfig{
		API:    app.dwClient,
		Coord:  app.camCoord,
		Store:  app.store,
		Writer: app.writer,
		Logger: logger.Log,
		OnChange: func() {
			app.broadcastCameras()
		},
	})
	app.users = entity.NewUsers(app.dwClient, app.serverCoord, app.writer, logger.Log)
	app.sensors = entity.NewSensors(app.camCoord, app.serverCoord)

	// 초기 데이터 채우기 (실패해도 폴링 루프가 복구함)
	if err := app.camCoord.Refresh(ctx); err != nil {
		logger.Warn("Initial camera refresh failed", zap.Error(err))
	}
	if err := app.serverCoord.Refresh(ctx); err != nil {
		logger.Warn("Initial server refresh failed", zap.Error(err))
	}

	// 알려진 카메라 외 로컬 상태 정리
	knownIDs := make(map[string]bool)
	for _, cam := range app.camCoord.Cameras() {
		knownIDs[cam.ID] = true
	}
	if len(knownIDs) > 0 {
		if err := app.store.Prune(knownIDs); err != nil {
			logger.Warn("Failed to prune state store", zap.Error(err))
		}
	}

	// 7. MQTT 브리지 (선택)
	if config.MQTT.Enabled {
		app.mqttBridge = mqtt.NewBridge(mqtt.Config{
			Broker:          config.MQTT.Broker,
			ClientID:        config.MQTT.ClientID,
			Username:        config.MQTT.Username,
			Password:        config.MQTT.Password,
			DiscoveryPrefix: config.MQTT.DiscoveryPrefix,
			BaseTopic:       config.MQTT.BaseTopic,
		}, app.cameras, app.users, app.sensors, app.serverCoord, logger.Log)

		if err := app.mqttBridge.Start(); err != nil {
			return nil, fmt.Errorf("failed to start MQTT bridge: %w", err)
		}
		logger.Info("MQTT bridge started", zap.String("broker", config.MQTT.Broker))
	}

	// 8. 코디네이터 리스너: 갱신마다 WebSocket/MQTT로 상태 전파
	app.camCoord.AddListener(func() {
		app.broadcastCameras()
		app.eventServer.Broadcast("sensors", app.sensors.Values())
	})
	app.serverCoord.AddListener(func() {
		app.eventServer.Broadcast("users", app.users.States())
		app.eventServer.Broadcast("sensors", app.sensors.Values())
		if app.mqttBridge != nil {
			app.mqttBridge.PublishStates()
		}
	})

	// 9. API 서버
	app.apiServer = api.NewServer(api.ServerConfig{
		Port:       config.Server.HTTPPort,
		Production: config.Server.Production,
		Logger:     logger.Log,
		HealthHandler: func() map[string]interface{} {
			return map[string]interface{}{
				"status":       "ok",
				"version":      version,
				"cameras":      len(app.camCoord.Cameras()),
				"stale":        app.camCoord.Stale() || app.serverCoord.Stale(),
				"last_success": app.camCoord.LastSuccess().UTC(),
				"ws_clients":   app.eventServer.GetClientCount(),
			}
		},
		Cameras: app.cameras,
		Users:   app.users,
		Sensors: app.sensors,
		LicensesHandler: func() map[string]interface{} {
			return app.serverCoord.Data().Licenses
		},
		StatusHandler: app.statusCoord.Status,
		WebSocketHandler: app.eventServer.HandleWebSocket,
	})

	if err := app.apiServer.Start(); err != nil {
		return nil, fmt.Errorf("failed to start API server: %w", err)
	}
	logger.Info("API server started")

	// 10. 폴링 루프 시작
	app.runLoop(ctx, app.camCoord.Run)
	app.runLoop(ctx, app.serverCoord.Run)
	app.runLoop(ctx, app.statusCoord.Run)

	// 11. 스트림 프로브 (선택)
	if config.Probe.Enabled {
		prober := probe.NewProber(time.Duration(config.Probe.Timeout)*time.Second, logger.Log)
		runner := probe.NewRunner(
			prober,
			app.probeTargets,
			func(id string, ok bool) {
				app.cameras.SetStreamOK(id, ok)
			},
			time.Duration(config.Poll.StatusInterval)*time.Second,
			logger.Log,
		)
		app.runLoop(ctx, runner.Run)
		logger.Info("Stream probe started")
	}

	// 12. MQTT 스냅샷 발행 루프 (선택)
	if app.mqttBridge != nil {
		app.runLoop(ctx, func(ctx context.Context) {
			ticker := time.NewTicker(time.Duration(config.Poll.StatusInterval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					app.mqttBridge.PublishSnapshots(ctx)
				}
			}
		})
	}

	return app, nil
}

// runLoop는 백그라운드 루프를 시작하고 종료 대기 그룹에 등록합니다
func (app *Application) runLoop(ctx context.Context, fn func(context.Context)) {
	app.loops.Add(1)
	go func() {
		defer app.loops.Done()
		fn(ctx)
	}()
}

// broadcastCameras는 카메라 상태를 모든 출력 채널로 전파합니다
func (app *Application) broadcastCameras() {
	app.eventServer.Broadcast("cameras", app.cameras.States())
	if app.mqttBridge != nil {
		app.mqttBridge.PublishStates()
	}
}

// probeTargets는 프로브 대상 목록을 생성합니다.
// 차단된 카메라와 오프라인 카메라는 제외합니다.
func (app *Application) probeTargets() []probe.Target {
	states := app.cameras.States()
	targets := make([]probe.Target, 0, len(states))
	for _, state := range states {
		if state.StreamBlocked || !state.Online || state.StreamURL == "" {
			continue
		}
		targets = append(targets, probe.Target{ID: state.ID, URL: state.StreamURL})
	}
	return targets
}

// cleanup은 브리지 리소스를 정리합니다
func (app *Application) cleanup() {
	logger.Info("Cleaning up application resources")

	// 폴링 루프 종료 대기
	app.loops.Wait()

	// 진행 중인 쓰기 완료 대기 (쓰기는 취소되지 않음)
	if app.writer != nil {
		app.writer.Wait()
	}

	if app.apiServer != nil {
		app.apiServer.Stop()
	}

	if app.eventServer != nil {
		app.eventServer.Close()
	}

	if app.mqttBridge != nil {
		app.mqttBridge.Stop()
	}

	if app.dwClient != nil {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		app.dwClient.Logout(logoutCtx)
		cancel()
	}

	logger.Info("Cleanup completed")
}
