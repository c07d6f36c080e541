package entity

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/client"
	"github.com/yourusername/dwbridge/internal/coordinator"
)

// UserAPI는 사용자 어댑터가 사용하는 클라이언트 작업 집합
type UserAPI interface {
	SetUserEnabled(ctx context.Context, userID string, enabled bool) error
}

// Users는 사용자 활성화 스위치 어댑터입니다. 소유권은 서버에 있으며
// 이 어댑터는 상태를 미러링하고 변경을 요청할 뿐입니다.
type Users struct {
	api    UserAPI
	coord  *coordinator.ServerCoordinator
	writer *coordinator.Writer
	logger *zap.Logger
}

// NewUsers는 새로운 사용자 어댑터를 생성합니다
func NewUsers(api UserAPI, coord *coordinator.ServerCoordinator, writer *coordinator.Writer, logger *zap.Logger) *Users {
	return &Users{
		api:    api,
		coord:  coord,
		writer: writer,
		logger: logger,
	}
}

// States는 모든 사용자의 상태 스냅샷을 반환합니다
func (u *Users) States() []UserState {
	data := u.coord.Data()
	stale := u.coord.Stale()

	states := make([]UserState, 0, len(data.Users))
	for _, user := range data.Users {
		states = append(states, u.buildState(user, stale))
	}
	return states
}

func (u *Users) buildState(user client.User, stale bool) UserState {
	return UserState{
		ID:          user.ID,
		Name:        user.DisplayName(),
		Email:       user.Email,
		Type:        user.Type,
		IsCloud:     strings.EqualFold(user.Type, "cloud"),
		Enabled:     user.IsEnabled,
		Stale:       stale,
		Degraded:    u.writer.Degraded(userKey(user.ID)),
		Unavailable: u.coord.AuthFailed(),
	}
}

// State는 ID로 사용자 상태를 조회합니다
func (u *Users) State(userID string) (UserState, bool) {
	user, ok := u.coord.User(userID)
	if !ok {
		return UserState{}, false
	}
	return u.buildState(user, u.coord.Stale()), true
}

// SetEnabled는 사용자 계정을 활성화/비활성화합니다
func (u *Users) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	if _, ok := u.coord.User(userID); !ok {
		return &client.NotFoundError{Resource: "user", ID: userID}
	}

	err := u.writer.Do(ctx, userKey(userID), func(ctx context.Context) error {
		return u.api.SetUserEnabled(ctx, userID, enabled)
	})
	if err != nil {
		return err
	}

	// 쓰기 성공 후 서버 데이터 갱신 (best-effort)
	if err := u.coord.Refresh(ctx); err != nil {
		u.logger.Debug("Refresh after write failed", zap.Error(err))
	}
	return nil
}

func userKey(userID string) string {
	return "user:" + userID
}
