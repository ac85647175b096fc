package playback

import (
	"context"
	"time"

	"github.com/bitmark-inc/logger"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// State of a navigator.
type State int

// navigator states
const (
	Stopped State = iota
	Playing
	Paused
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "*Unknown*"
	}
}

// TemporalNavigator steps through the phases of a cache. It starts Stopped
// at phase 0; the k-th Tick while playing shows phase k mod N.
//
// A navigator is driven by a single goroutine and is not safe for
// concurrent use. The cache behind it is.
type TemporalNavigator struct {
	cache   *PhaseCache
	state   State
	current int
	fps     float64
	speed   float64
	looping bool
	log     *logger.L
}

// NewTemporalNavigator creates a stopped, looping navigator over cache.
func NewTemporalNavigator(cache *PhaseCache) (*TemporalNavigator, error) {
	if cache == nil {
		return nil, flowerr.New(flowerr.InvalidInput, "playback.NewTemporalNavigator", "nil cache")
	}
	return &TemporalNavigator{
		cache:   cache,
		state:   Stopped,
		fps:     10,
		speed:   1,
		looping: true,
		log:     logger.New("navigator"),
	}, nil
}

// State returns the playback state.
func (n *TemporalNavigator) State() State {
	return n.state
}

// Play starts or resumes playback at fps frames per second. Resuming a
// non-looping navigator that stopped on the last phase rewinds to phase 0.
func (n *TemporalNavigator) Play(fps float64) error {
	if !(fps > 0) {
		return flowerr.New(flowerr.InvalidInput, "playback.Play", "frame rate must be positive, got %g", fps)
	}
	if !n.looping && n.current == n.cache.TotalPhases()-1 {
		n.current = 0
	}
	n.fps = fps
	n.log.Debugf("%s -> %s at %g fps", n.state, Playing, fps)
	n.state = Playing
	return nil
}

// Pause suspends playback. It has no effect unless playing.
func (n *TemporalNavigator) Pause() {
	if n.state != Playing {
		return
	}
	n.log.Debugf("%s -> %s at phase %d", n.state, Paused, n.current)
	n.state = Paused
}

// Stop ends playback and rewinds to phase 0.
func (n *TemporalNavigator) Stop() {
	n.log.Debugf("%s -> %s", n.state, Stopped)
	n.state = Stopped
	n.current = 0
}

// Tick advances one frame while playing and returns the phase to display.
// It returns nil, nil when not playing. Without looping, reaching the last
// phase pauses playback.
func (n *TemporalNavigator) Tick() (*models.VelocityPhase, error) {
	if n.state != Playing {
		return nil, nil
	}

	total := n.cache.TotalPhases()
	next := n.current + 1
	if next >= total {
		if !n.looping {
			n.state = Paused
			return nil, nil
		}
		next = 0
	}

	phase, err := n.cache.GetPhase(next)
	if err != nil {
		n.state = Paused
		return nil, err
	}
	n.current = next

	if !n.looping && n.current == total-1 {
		n.log.Debugf("reached last phase %d, pausing", n.current)
		n.state = Paused
	}
	return phase, nil
}

// GoToPhase jumps to the given phase and returns it.
func (n *TemporalNavigator) GoToPhase(index int) (*models.VelocityPhase, error) {
	phase, err := n.cache.GetPhase(index)
	if err != nil {
		return nil, err
	}
	n.current = index
	return phase, nil
}

// NextPhase steps forward one phase, wrapping only when looping.
func (n *TemporalNavigator) NextPhase() (*models.VelocityPhase, error) {
	next := n.current + 1
	if next >= n.cache.TotalPhases() {
		if !n.looping {
			return n.CurrentPhase()
		}
		next = 0
	}
	return n.GoToPhase(next)
}

// PreviousPhase steps back one phase, wrapping only when looping.
func (n *TemporalNavigator) PreviousPhase() (*models.VelocityPhase, error) {
	prev := n.current - 1
	if prev < 0 {
		if !n.looping {
			return n.CurrentPhase()
		}
		prev = n.cache.TotalPhases() - 1
	}
	return n.GoToPhase(prev)
}

// SetLooping controls wraparound at the end of the cycle.
func (n *TemporalNavigator) SetLooping(loop bool) {
	n.looping = loop
}

// Looping reports whether playback wraps around.
func (n *TemporalNavigator) Looping() bool {
	return n.looping
}

// SetSpeed scales the frame rate by multiplier.
func (n *TemporalNavigator) SetSpeed(multiplier float64) error {
	if !(multiplier > 0) {
		return flowerr.New(flowerr.InvalidInput, "playback.SetSpeed", "speed must be positive, got %g", multiplier)
	}
	n.speed = multiplier
	return nil
}

// FrameInterval is the wall-clock time between ticks at the current frame
// rate and speed.
func (n *TemporalNavigator) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / (n.fps * n.speed))
}

// CurrentPhase returns the phase at the current position.
func (n *TemporalNavigator) CurrentPhase() (*models.VelocityPhase, error) {
	return n.cache.GetPhase(n.current)
}

// CurrentIndex returns the current position.
func (n *TemporalNavigator) CurrentIndex() int {
	return n.current
}

// Run ticks at FrameInterval and hands each phase to show until playback
// stops or pauses, show fails, or ctx is cancelled.
func (n *TemporalNavigator) Run(ctx context.Context, show func(*models.VelocityPhase) error) error {
	ticker := time.NewTicker(n.FrameInterval())
	defer ticker.Stop()

	for n.state == Playing {
		if err := ctx.Err(); err != nil {
			n.Pause()
			return err
		}
		select {
		case <-ctx.Done():
			n.Pause()
			return ctx.Err()
		case <-ticker.C:
			phase, err := n.Tick()
			if err != nil {
				return err
			}
			if phase == nil {
				continue
			}
			if err := show(phase); err != nil {
				n.Pause()
				return err
			}
		}
	}
	return nil
}
