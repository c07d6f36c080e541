package probe

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"go.uber.org/zap"
)

// Prober는 카메라 스트림 URL의 도달 가능성을 검사합니다.
// DESCRIBE까지만 수행하고 미디어는 수신하지 않습니다.
type Prober struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewProber는 새로운 Prober를 생성합니다
func NewProber(timeout time.Duration, logger *zap.Logger) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		timeout: timeout,
		logger:  logger,
	}
}

// Check는 RTSP URL에 DESCRIBE를 수행해 스트림 존재를 확인합니다.
// ctx는 상위 루프 취소 확인용이며, 개별 요청은 타임아웃으로 제한됩니다.
func (p *Prober) Check(ctx context.Context, rtspURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u, err := url.Parse(rtspURL)
	if err != nil {
		return fmt.Errorf("invalid RTSP URL: %w", err)
	}

	transport := gortsplib.TransportTCP
	c := &gortsplib.Client{
		Transport:    &transport,
		ReadTimeout:  p.timeout,
		WriteTimeout: p.timeout,
	}

	// RTSP 서버 연결
	if err := c.Start(u.Scheme, u.Host); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer c.Close()

	baseURL, err := base.ParseURL(rtspURL)
	if err != nil {
		return fmt.Errorf("failed to parse base URL: %w", err)
	}

	// DESCRIBE: 스트림 정보 획득 (여기까지만 수행)
	desc, _, err := c.Describe(baseURL)
	if err != nil {
		return fmt.Errorf("failed to describe: %w", err)
	}

	p.logger.Debug("Stream probe succeeded",
		zap.String("host", u.Host),
		zap.Int("media_count", len(desc.Medias)),
	)

	return nil
}
