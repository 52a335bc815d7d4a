package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/confidence"
	"github.com/mnemo-dev/mnemo/internal/domain"
)

// Feedback outcomes.
const (
	OutcomePositive = "positive"
	OutcomeNegative = "negative"
)

// Learner turns agent feedback into confidence adjustments: a memory
// that led to a good outcome is reinforced, one that misled is
// penalized. This closes the loop that keeps the corpus honest.
type Learner struct {
	memories *MemoryService
	bus      *Bus
	logger   *zap.Logger
}

func NewLearner(memories *MemoryService, bus *Bus, logger *zap.Logger) *Learner {
	return &Learner{memories: memories, bus: bus, logger: logger}
}

// Feedback applies one outcome to one memory.
func (l *Learner) Feedback(ctx context.Context, id uuid.UUID, outcome string) (*domain.Memory, error) {
	switch outcome {
	case OutcomePositive:
		m, err := l.memories.Reinforce(ctx, id, confidence.FeedbackSignal)
		if err != nil {
			return nil, err
		}
		l.bus.Publish(EventReinforced, id)
		l.logger.Info("feedback applied",
			zap.String("memory_id", id.String()),
			zap.String("outcome", outcome),
			zap.Float64("confidence", m.Confidence.Current))
		return m, nil

	case OutcomeNegative:
		m, err := l.memories.Penalize(ctx, id, confidence.FeedbackSignal)
		if err != nil {
			return nil, err
		}
		l.bus.Publish(EventPenalized, id)
		l.logger.Info("feedback applied",
			zap.String("memory_id", id.String()),
			zap.String("outcome", outcome),
			zap.Float64("confidence", m.Confidence.Current))
		return m, nil

	default:
		return nil, fmt.Errorf("outcome must be %q or %q, got %q", OutcomePositive, OutcomeNegative, outcome)
	}
}
