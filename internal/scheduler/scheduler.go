package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/robfig/cron/v3"
)

// DefaultLockTTL срок блокировки; пока задача идет, он продлевается каждую треть
const DefaultLockTTL = 10 * time.Minute

// Имена задач
const (
	JobExpiry    = "expiry"
	JobRecurring = "recurring"
)

var (
	// ErrJobBusy задача уже выполняется здесь или на другом экземпляре
	ErrJobBusy = errors.New("job is already running")
	// ErrUnknownJob задача не зарегистрирована
	ErrUnknownJob = errors.New("unknown job")
)

type job struct {
	fn func(ctx context.Context) error
	mu sync.Mutex
}

// Scheduler запускает ежедневные обходы по cron-расписанию
type Scheduler struct {
	cron    *cron.Cron
	locker  Locker
	lockTTL time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	log     *logger.Logger

	mu   sync.RWMutex
	jobs map[string]*job
}

// New создает планировщик в часовом поясе loc. Задачи не запускаются повторно,
// пока предыдущий запуск не завершился.
func New(loc *time.Location, locker Locker, log *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if locker == nil {
		locker = NopLocker{}
	}
	cronLog := cron.PrintfLogger(log)
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		locker:  locker,
		lockTTL: DefaultLockTTL,
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
		jobs:    make(map[string]*job),
	}
}

// Add регистрирует задачу name по расписанию spec (5 полей)
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s is already scheduled", name)
	}
	if _, err := s.cron.AddFunc(spec, func() { _ = s.run(name) }); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	s.jobs[name] = &job{fn: fn}
	s.log.Infow("Job scheduled", "job", name, "spec", spec)
	return nil
}

// RunNow синхронно выполняет задачу вне расписания. Пока идет плановый
// запуск той же задачи, возвращает ErrJobBusy.
func (s *Scheduler) RunNow(name string) error {
	return s.run(name)
}

// run выполняет задачу под локальной и распределенной блокировками
func (s *Scheduler) run(name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownJob)
	}

	if !j.mu.TryLock() {
		s.log.Infow("Job is already running", "job", name)
		return ErrJobBusy
	}
	defer j.mu.Unlock()

	ctx := s.ctx
	lease, ok, err := s.locker.TryLock(ctx, name, s.lockTTL)
	if err != nil {
		s.log.Errorw("Job skipped, lock unavailable", "job", name, "error", err)
		return fmt.Errorf("failed to lock job %s: %w", name, err)
	}
	if !ok {
		s.log.Infow("Job is running on another instance", "job", name)
		return ErrJobBusy
	}
	stop := s.keepAlive(ctx, name, lease)
	defer func() {
		stop()
		lease.Release()
	}()

	started := time.Now()
	s.log.Infow("Job started", "job", name)
	if err := j.fn(ctx); err != nil {
		s.log.Errorw("Job failed", "job", name, "error", err, "duration", time.Since(started))
		return err
	}
	s.log.Infow("Job finished", "job", name, "duration", time.Since(started))
	return nil
}

// keepAlive продлевает блокировку, пока задача не завершится
func (s *Scheduler) keepAlive(ctx context.Context, name string, lease Lease) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lease.Refresh(ctx); err != nil && ctx.Err() == nil {
					s.log.Warnw("Failed to extend job lock", "job", name, "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// Start запускает планировщик в фоне
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop останавливает планировщик и ждет завершения текущих задач или истечения ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}
