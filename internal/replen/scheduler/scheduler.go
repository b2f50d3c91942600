package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
	"go.uber.org/zap"
)

// Scanner is the part of the replenishment engine the scheduler drives.
type Scanner interface {
	CheckThresholds(ctx context.Context, warehouseID *int64) (*dto.ScanResult, error)
	GenerateTasks(ctx context.Context, warehouseID *int64) (*dto.ScanResult, error)
}

// Locker takes a lock without waiting. obtained is false when another holder
// has it; err reports that the lock backend itself failed.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), obtained bool, err error)
}

type Config struct {
	ScanInterval time.Duration
	// GenerateInterval of zero disables the generation loop.
	GenerateInterval time.Duration
	// WarehouseIDs limits the runs; empty scans every warehouse in one pass.
	WarehouseIDs []int64
	LockTTL      time.Duration
}

type job struct {
	name string
	run  func(ctx context.Context, warehouseID *int64) (*dto.ScanResult, error)
}

// Scheduler runs the periodic threshold scan and task generation. Each run
// holds a best-effort lock so replicas rarely overlap; when the lock backend
// is down the run goes ahead anyway.
type Scheduler struct {
	scanner Scanner
	locker  Locker
	cfg     Config
	logger  *zap.Logger
}

// New builds a scheduler. locker may be nil, in which case runs are unlocked.
func New(scanner Scanner, locker Locker, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Scheduler{scanner: scanner, locker: locker, cfg: cfg, logger: log}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	loops := []struct {
		every time.Duration
		job   job
	}{
		{s.cfg.ScanInterval, job{"check_thresholds", s.scanner.CheckThresholds}},
		{s.cfg.GenerateInterval, job{"generate_tasks", s.scanner.GenerateTasks}},
	}
	for _, l := range loops {
		if l.every <= 0 {
			s.logger.Info("replenishment loop disabled", zap.String("job", l.job.name))
			continue
		}
		wg.Add(1)
		go func(every time.Duration, j job) {
			defer wg.Done()
			s.loop(ctx, every, j)
		}(l.every, l.job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, j job) {
	s.logger.Info("starting replenishment loop", zap.String("job", j.name), zap.Duration("interval", every))
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping replenishment loop", zap.String("job", j.name))
			return
		case <-ticker.C:
			s.runAll(ctx, j)
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context, j job) {
	if len(s.cfg.WarehouseIDs) == 0 {
		s.runOnce(ctx, j, nil)
		return
	}
	for _, id := range s.cfg.WarehouseIDs {
		s.runOnce(ctx, j, &id)
	}
}

// runOnce reports whether the job actually ran.
func (s *Scheduler) runOnce(ctx context.Context, j job, warehouseID *int64) bool {
	key := lockKey(j.name, warehouseID)
	fields := []zap.Field{zap.String("job", j.name), zap.String("lock", key)}

	if s.locker != nil {
		release, obtained, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		switch {
		case err != nil:
			s.logger.Warn("replenishment lock unavailable, running unlocked", append(fields, zap.Error(err))...)
		case !obtained:
			s.logger.Debug("replenishment run held by another instance, skipping", fields...)
			return false
		default:
			defer release()
		}
	}

	start := time.Now()
	res, err := j.run(ctx, warehouseID)
	if err != nil {
		s.logger.Error("replenishment run failed", append(fields, zap.Error(err))...)
		return true
	}
	s.logger.Info("replenishment run finished", append(fields,
		zap.Duration("took", time.Since(start)),
		zap.Int("scanned", res.Scanned),
		zap.Int("created", len(res.Created)),
		zap.Int("errors", len(res.Errors)),
	)...)
	return true
}

func lockKey(job string, warehouseID *int64) string {
	if warehouseID == nil {
		return "lock:replen:" + job + ":all"
	}
	return fmt.Sprintf("lock:replen:%s:%d", job, *warehouseID)
}
