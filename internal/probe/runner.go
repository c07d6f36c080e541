package probe

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Target은 프로브 대상 스트림
type Target struct {
	ID  string
	URL string
}

// Runner는 알려진 카메라 스트림을 주기적으로 프로브합니다.
// 실패는 보고만 하고 엔티티를 제거하지 않습니다.
type Runner struct {
	prober   *Prober
	targets  func() []Target
	report   func(id string, ok bool)
	interval time.Duration
	logger   *zap.Logger
}

// NewRunner는 새로운 프로브 러너를 생성합니다
func NewRunner(prober *Prober, targets func() []Target, report func(id string, ok bool), interval time.Duration, logger *zap.Logger) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		prober:   prober,
		targets:  targets,
		report:   report,
		interval: interval,
		logger:   logger,
	}
}

// RunOnce는 모든 대상을 한 번 프로브합니다
func (r *Runner) RunOnce(ctx context.Context) {
	for _, target := range r.targets() {
		if ctx.Err() != nil {
			return
		}

		err := r.prober.Check(ctx, target.URL)
		if err != nil {
			r.logger.Warn("Stream probe failed",
				zap.String("camera_id", target.ID),
				zap.Error(err),
			)
		}
		r.report(target.ID, err == nil)
	}
}

// Run은 프로브 루프를 실행합니다
func (r *Runner) Run(ctx context.Context) {
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Probe runner stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}
