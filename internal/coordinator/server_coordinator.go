package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/client"
)

// ServerData는 서버 코디네이터가 관리하는 데이터 묶음
type ServerData struct {
	SystemInfo *client.SystemInfo
	Users      []client.User
	Licenses   map[string]interface{}
}

// ServerCoordinator는 서버 정보, 사용자 목록, 라이선스 요약을 주기적으로
// 갱신합니다. system info 실패는 사이클 실패로 처리하고, 사용자/라이선스
// 실패는 해당 데이터만 이전 값으로 유지합니다.
type ServerCoordinator struct {
	api      API
	interval time.Duration
	logger   *zap.Logger

	mu          sync.RWMutex
	data        ServerData
	stale       bool
	authFailed  bool
	lastSuccess time.Time

	listenerMu sync.Mutex
	listeners  []func()
}

// NewServerCoordinator는 새로운 서버 코디네이터를 생성합니다
func NewServerCoordinator(api API, interval time.Duration, logger *zap.Logger) *ServerCoordinator {
	return &ServerCoordinator{
		api:      api,
		interval: interval,
		logger:   logger,
	}
}

// AddListener는 갱신 성공 시 호출될 리스너를 등록합니다
func (c *ServerCoordinator) AddListener(fn func()) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *ServerCoordinator) notifyListeners() {
	c.listenerMu.Lock()
	listeners := make([]func(), len(c.listeners))
	copy(listeners, c.listeners)
	c.listenerMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Data는 마지막으로 알려진 서버 데이터의 복사본을 반환합니다
func (c *ServerCoordinator) Data() ServerData {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data := ServerData{
		SystemInfo: c.data.SystemInfo,
		Users:      make([]client.User, len(c.data.Users)),
		Licenses:   c.data.Licenses,
	}
	copy(data.Users, c.data.Users)
	return data
}

// User는 ID로 사용자를 조회합니다
func (c *ServerCoordinator) User(id string) (client.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, u := range c.data.Users {
		if u.ID == id {
			return u, true
		}
	}
	return client.User{}, false
}

// Stale은 마지막 갱신이 실패했는지 여부를 반환합니다
func (c *ServerCoordinator) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}

// AuthFailed는 마지막 갱신이 인증 거부로 실패했는지 여부를 반환합니다
func (c *ServerCoordinator) AuthFailed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authFailed
}

// Refresh는 서버 데이터를 즉시 갱신합니다
func (c *ServerCoordinator) Refresh(ctx context.Context) error {
	// system info 실패는 사이클 전체 실패
	info, err := c.api.GetSystemInfo(ctx)
	if err != nil {
		c.markFailed(err)
		return err
	}

	c.mu.Lock()
	prevUsers := c.data.Users
	prevLicenses := c.data.Licenses
	c.mu.Unlock()

	// 사용자/라이선스 실패는 경고만 하고 이전 값 유지.
	// 단, 인증 거부는 전역 상태이므로 사이클 실패로 처리합니다.
	users, err := c.api.GetUsers(ctx)
	if err != nil {
		if isAuthError(err) {
			c.markFailed(err)
			return err
		}
		c.logger.Warn("Users fetch failed, keeping last data", zap.Error(err))
		users = prevUsers
	}

	licenses, err := c.api.GetLicenseSummary(ctx)
	if err != nil {
		if isAuthError(err) {
			c.markFailed(err)
			return err
		}
		c.logger.Warn("License fetch failed, keeping last data", zap.Error(err))
		licenses = prevLicenses
	}

	c.mu.Lock()
	c.data = ServerData{SystemInfo: info, Users: users, Licenses: licenses}
	c.stale = false
	c.authFailed = false
	c.lastSuccess = time.Now()
	c.mu.Unlock()

	c.notifyListeners()
	return nil
}

func (c *ServerCoordinator) markFailed(err error) {
	var authErr *client.AuthError
	c.mu.Lock()
	c.stale = true
	if errors.As(err, &authErr) {
		c.authFailed = true
	}
	c.mu.Unlock()
}

func isAuthError(err error) bool {
	var authErr *client.AuthError
	return errors.As(err, &authErr)
}

// Run은 폴링 루프를 실행합니다. 어떤 에러도 루프를 종료시키지 않습니다.
func (c *ServerCoordinator) Run(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("Initial server refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Server coordinator stopped")
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("Server refresh failed, keeping last data", zap.Error(err))
			}
		}
	}
}
