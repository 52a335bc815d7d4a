package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/confidence"
	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/store"
)

// Sweep defaults.
const (
	DefaultSweepInterval  = 1 * time.Hour
	DefaultPruneThreshold = 0.2
	DefaultPruneGrace     = 14 * 24 * time.Hour

	// abstractionMinCandidates is how many memories of a type must
	// exist before a sweep bothers clustering them.
	abstractionMinCandidates = 10
)

// SweepResult summarizes one maintenance pass.
type SweepResult struct {
	Decayed    int           `json:"decayed"`
	Pruned     int           `json:"pruned"`
	Abstracted int           `json:"abstracted"`
	Duration   time.Duration `json:"duration"`
}

// SchedulerConfig tunes the periodic sweep.
type SchedulerConfig struct {
	Interval       time.Duration
	PruneThreshold float64
	PruneGrace     time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultSweepInterval
	}
	if c.PruneThreshold <= 0 {
		c.PruneThreshold = DefaultPruneThreshold
	}
	if c.PruneGrace <= 0 {
		c.PruneGrace = DefaultPruneGrace
	}
	return c
}

// Scheduler runs the periodic maintenance sweep: decay every memory,
// prune the ones that decayed below the floor and went stale, then try
// to abstract types with enough candidates.
type Scheduler struct {
	store      *store.Store
	memories   *MemoryService
	abstractor *Abstractor
	bus        *Bus
	logger     *zap.Logger
	cfg        SchedulerConfig

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewScheduler(s *store.Store, memories *MemoryService, abstractor *Abstractor, bus *Bus, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:      s,
		memories:   memories,
		abstractor: abstractor,
		bus:        bus,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the sweep loop in the background.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.logger.Info("sweep scheduler started", zap.Duration("interval", s.cfg.Interval))
		for {
			select {
			case <-ticker.C:
				result := s.RunSweep(context.Background())
				s.logger.Info("sweep complete",
					zap.Int("decayed", result.Decayed),
					zap.Int("pruned", result.Pruned),
					zap.Int("abstracted", result.Abstracted),
					zap.Duration("duration", result.Duration))
			case <-s.stopCh:
				s.logger.Info("sweep scheduler stopped")
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunSweep executes one full maintenance pass. Failures on individual
// memories are logged and skipped so one bad record cannot stall the
// whole sweep.
func (s *Scheduler) RunSweep(ctx context.Context) SweepResult {
	start := time.Now()
	now := start.UTC()
	result := SweepResult{}

	for _, m := range s.store.All(ctx) {
		decayed := confidence.Decay(m.Confidence, now)

		if confidence.ShouldPrune(decayed, now, s.cfg.PruneThreshold, s.cfg.PruneGrace) {
			if err := s.memories.Delete(ctx, m.ID); err != nil {
				s.logger.Warn("prune failed",
					zap.String("memory_id", m.ID.String()),
					zap.Error(err))
				continue
			}
			s.bus.Publish(EventPruned, m.ID)
			result.Pruned++
			continue
		}

		if decayed != m.Confidence {
			if err := s.store.UpdateConfidence(ctx, m.ID, decayed); err != nil {
				s.logger.Warn("decay update failed",
					zap.String("memory_id", m.ID.String()),
					zap.Error(err))
				continue
			}
			result.Decayed++
		}
	}

	for _, t := range domain.MemoryTypes() {
		if s.store.CountByType(ctx, t) < abstractionMinCandidates {
			continue
		}
		created, err := s.abstractor.Run(ctx, t)
		if err != nil {
			s.logger.Warn("abstraction sweep failed",
				zap.String("type", string(t)),
				zap.Error(err))
			continue
		}
		result.Abstracted += created
	}

	result.Duration = time.Since(start)
	return result
}
