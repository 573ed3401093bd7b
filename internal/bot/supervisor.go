package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crossarb/pkg/retry"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// supervisor.go - перезапуск наблюдателей
//
// Supervisor владеет горутинами наблюдателей. Умерший наблюдатель
// перезапускается с экспоненциальной паузой; слишком частые смерти
// останавливают весь супервизор: это сигнал, что с биржей или сетью
// что-то системно не так.

// ErrObserverRestartLimit - наблюдатель умирает чаще, чем мы готовы
// его поднимать
var ErrObserverRestartLimit = errors.New("observer restart limit exceeded")

// Task - перезапускаемая единица работы
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type SupervisorConfig struct {
	// MaxRestartAttempts - допустимое число быстрых смертей подряд
	MaxRestartAttempts int
	// ResetAttemptsAfter - проработавший дольше наблюдатель
	// обнуляет счетчик попыток
	ResetAttemptsAfter time.Duration
	// Backoff - пауза перед перезапуском по номеру попытки
	Backoff retry.Config
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		MaxRestartAttempts: 5,
		ResetAttemptsAfter: 60 * time.Second,
		Backoff:            retry.SupervisorConfig(),
	}
}

type Supervisor struct {
	cfg    SupervisorConfig
	log    *zap.SugaredLogger
	events EventSink

	now func() time.Time
}

func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.MaxRestartAttempts <= 0 {
		cfg.MaxRestartAttempts = 5
	}
	if cfg.ResetAttemptsAfter <= 0 {
		cfg.ResetAttemptsAfter = 60 * time.Second
	}
	return &Supervisor{
		cfg: cfg,
		log: utils.Named("Supervisor"),
		now: time.Now,
	}
}

// SetEvents подключает трансляцию событий перезапусков
func (s *Supervisor) SetEvents(sink EventSink) { s.events = sink }

// Run ведет все задачи до отмены ctx или исчерпания лимита
// перезапусков любой из них. Возвращает первый лимит-отказ.
func (s *Supervisor) Run(ctx context.Context, tasks []Task) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(tasks))
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			errCh <- s.supervise(runCtx, task)
		}(task)
	}

	go func() {
		wg.Wait()
		close(errCh)
	}()

	var limitErr error
	for err := range errCh {
		if err != nil && errors.Is(err, ErrObserverRestartLimit) && limitErr == nil {
			limitErr = err
			// Один лимит гасит всех
			cancel()
		}
	}

	if limitErr != nil {
		return limitErr
	}
	return ctx.Err()
}

// supervise ведет одну задачу с политикой перезапуска
func (s *Supervisor) supervise(ctx context.Context, task Task) error {
	attempts := 0
	var lastErr error

	for {
		started := s.now()
		err := task.Run(ctx)
		runtime := s.now().Sub(started)

		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Отмена - штатное завершение
			return nil
		}

		if err != nil {
			lastErr = err
			s.log.Warnw("observer died", "task", task.Name, "error", err, "runtime", runtime)
		} else {
			s.log.Warnw("observer exited cleanly, restarting", "task", task.Name, "runtime", runtime)
		}

		// Счетчик попыток растет только при быстрых смертях
		if runtime < s.cfg.ResetAttemptsAfter {
			attempts++
		} else {
			attempts = 1
		}

		if attempts > s.cfg.MaxRestartAttempts {
			if lastErr == nil {
				return fmt.Errorf("%w: %s: kept exiting cleanly", ErrObserverRestartLimit, task.Name)
			}
			return fmt.Errorf("%w: %s: %w", ErrObserverRestartLimit, task.Name, lastErr)
		}

		delay := s.cfg.Backoff.DelayFor(attempts - 1)
		s.log.Infow("restarting observer", "task", task.Name, "attempt", attempts, "delay", delay)
		s.publishRestart(task.Name, attempts)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Supervisor) publishRestart(task string, attempt int) {
	RecordObserverRestart(task)
	if s.events != nil {
		s.events.Publish("observer_restart", map[string]interface{}{
			"task":    task,
			"attempt": attempt,
		})
	}
}
