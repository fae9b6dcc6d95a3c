package core

import (
	"cellarcore/pkg/domain"
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// TimelineSink receives one event per committed transition.
type TimelineSink interface {
	Emit(ctx context.Context, event domain.TimelineEvent) error
}

// EquipmentMirror copies vessel status into a denormalized view.
type EquipmentMirror interface {
	Mirror(ctx context.Context, vessels []domain.Vessel) error
}

// Effect names reported in TransitionResult.Secondary.
const (
	EffectTimeline = "timeline"
	EffectMirror   = "equipment_mirror"
)

const defaultEffectTimeout = 2 * time.Second

type effect struct {
	name string
	run  func(ctx context.Context) error
}

// dispatchEffects runs the secondary writes concurrently after commit. They
// share a detached, bounded context so a cancelled caller does not drop
// them, and their failures are reported but never returned.
func (s *Service) dispatchEffects(ctx context.Context, effects []effect) []domain.EffectOutcome {
	if len(effects) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.effectTimeout)
	defer cancel()

	outcomes := make([]domain.EffectOutcome, len(effects))
	var g errgroup.Group
	for i, e := range effects {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
				outcomes[i] = domain.EffectOutcome{Name: e.name, OK: err == nil}
				if err != nil {
					outcomes[i].Reason = err.Error()
				}
			}()
			return e.run(ctx)
		})
	}
	_ = g.Wait()
	for _, o := range outcomes {
		if !o.OK {
			s.logger.Warn("secondary effect failed", "effect", o.Name, "reason", o.Reason)
		}
	}
	return outcomes
}

func (s *Service) transitionEffects(event domain.TimelineEvent, vessels []domain.Vessel) []effect {
	var effects []effect
	if s.timeline != nil {
		effects = append(effects, effect{name: EffectTimeline, run: func(ctx context.Context) error {
			return s.timeline.Emit(ctx, event)
		}})
	}
	if s.mirror != nil && len(vessels) > 0 {
		effects = append(effects, effect{name: EffectMirror, run: func(ctx context.Context) error {
			return s.mirror.Mirror(ctx, vessels)
		}})
	}
	return effects
}
