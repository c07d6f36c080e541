package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/client"
)

// Writer는 서버로 향하는 쓰기를 직렬화합니다. 같은 키(카메라/사용자)에
// 대한 쓰기는 lock으로 직렬화되고, TransportError는 지수 백오프로
// 재시도됩니다. 재시도 소진 시 해당 키를 degraded로 표시합니다.
type Writer struct {
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	degradedMu sync.RWMutex
	degraded   map[string]bool

	// 진행 중인 쓰기 추적 (셧다운 시 완료 대기)
	wg sync.WaitGroup
}

// NewWriter는 새로운 Writer를 생성합니다
func NewWriter(retryCount int, retryDelay time.Duration, logger *zap.Logger) *Writer {
	if retryCount <= 0 {
		retryCount = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	return &Writer{
		retryCount: retryCount,
		retryDelay: retryDelay,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
		degraded:   make(map[string]bool),
	}
}

func (w *Writer) lock(key string) *sync.Mutex {
	w.lockMu.Lock()
	defer w.lockMu.Unlock()

	mu, exists := w.locks[key]
	if !exists {
		mu = &sync.Mutex{}
		w.locks[key] = mu
	}
	return mu
}

// Do는 키에 대한 쓰기 작업을 실행합니다. 같은 키의 쓰기는 절대
// 인터리브되지 않습니다. 키 간 순서는 보장하지 않습니다.
func (w *Writer) Do(ctx context.Context, key string, op func(context.Context) error) error {
	w.wg.Add(1)
	defer w.wg.Done()

	mu := w.lock(key)
	mu.Lock()
	defer mu.Unlock()

	delay := w.retryDelay

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			w.setDegraded(key, false)
			return nil
		}

		var transport *client.TransportError
		retryable := errors.As(err, &transport)

		if !retryable || attempt >= w.retryCount {
			w.setDegraded(key, true)
			w.logger.Error("Write failed",
				zap.String("key", key),
				zap.Int("attempts", attempt),
				zap.Bool("retryable", retryable),
				zap.Error(err),
			)
			return err
		}

		w.logger.Warn("Write failed, retrying",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			w.setDegraded(key, true)
			return ctx.Err()
		}

		delay *= 2
	}
}

func (w *Writer) setDegraded(key string, degraded bool) {
	w.degradedMu.Lock()
	defer w.degradedMu.Unlock()

	if degraded {
		w.degraded[key] = true
	} else {
		delete(w.degraded, key)
	}
}

// Degraded는 해당 키의 마지막 쓰기가 실패했는지 반환합니다
func (w *Writer) Degraded(key string) bool {
	w.degradedMu.RLock()
	defer w.degradedMu.RUnlock()
	return w.degraded[key]
}

// Wait는 진행 중인 쓰기가 모두 끝날 때까지 대기합니다 (셧다운용)
func (w *Writer) Wait() {
	w.wg.Wait()
}
