package positions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonbeam/halcyon-core/internal/instrument"
	"github.com/halcyonbeam/halcyon-core/internal/signal"
)

// recallTimeout bounds a whole snapshot restore when the caller's
// context carries no deadline.
const recallTimeout = 5 * time.Minute

// Service captures and restores motor position snapshots against the
// instrument registry.
type Service struct {
	repo     Repository
	registry *instrument.Registry
	logger   signal.Logger
}

// NewService creates the snapshot service. Pass a nil logger to silence
// it.
func NewService(repo Repository, registry *instrument.Registry, logger signal.Logger) *Service {
	if logger == nil {
		logger = signal.NopLogger()
	}
	return &Service{repo: repo, registry: registry, logger: logger}
}

// Save captures the current readback of each named motor into a new
// snapshot. Readbacks are pulled concurrently; any motor failing to
// read fails the whole save, since a partial snapshot is not safe to
// recall.
func (s *Service) Save(ctx context.Context, name string, motorNames []string) (*MotorPosition, error) {
	if len(motorNames) == 0 {
		return nil, ErrNoMotors
	}

	points := make([]signal.ControlPoint, len(motorNames))
	for i, motorName := range motorNames {
		point, err := s.registry.Point(motorName)
		if err != nil {
			return nil, err
		}
		points[i] = point
	}

	axes := make([]MotorAxis, len(motorNames))
	g, gctx := errgroup.WithContext(ctx)
	for i, motorName := range motorNames {
		g.Go(func() error {
			value, err := points[i].GetValue(gctx)
			if err != nil {
				return fmt.Errorf("positions: reading %q: %w", motorName, err)
			}
			readback, ok := value.(float64)
			if !ok {
				return fmt.Errorf("positions: %q readback is %T, want float64", motorName, value)
			}
			axes[i] = MotorAxis{Name: motorName, Readback: readback}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	position := &MotorPosition{
		UID:     uuid.NewString(),
		Name:    name,
		Axes:    axes,
		SavedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, position); err != nil {
		return nil, err
	}
	s.logger.Debug("saved motor position", "uid", position.UID, "name", name, "axes", len(axes))
	return position, nil
}

// Recall restores a snapshot: every axis is written concurrently with
// wait semantics, and a failed axis does not stop the others. The
// returned error joins one failure per axis that could not be restored.
func (s *Service) Recall(ctx context.Context, uid string) error {
	position, err := s.repo.GetByUID(ctx, uid)
	if err != nil {
		return err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, recallTimeout)
		defer cancel()
	}

	errs := make([]error, len(position.Axes))
	var wg sync.WaitGroup
	for i, axis := range position.Axes {
		point, err := s.registry.Point(axis.Name)
		if err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			target := axis.Readback + axis.Offset
			if err := point.Write(ctx, target, true); err != nil {
				errs[i] = fmt.Errorf("positions: restoring %q to %v: %w", axis.Name, target, err)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Debug("recalled motor position", "uid", uid, "name", position.Name)
	return nil
}

// Get returns one snapshot.
func (s *Service) Get(ctx context.Context, uid string) (*MotorPosition, error) {
	return s.repo.GetByUID(ctx, uid)
}

// List returns all snapshots, newest first.
func (s *Service) List(ctx context.Context) ([]MotorPosition, error) {
	return s.repo.List(ctx)
}

// Delete removes a snapshot.
func (s *Service) Delete(ctx context.Context, uid string) error {
	return s.repo.Delete(ctx, uid)
}
