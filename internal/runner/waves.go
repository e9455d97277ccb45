package runner

import (
	"errors"
	"fmt"
	"time"

	"github.com/torosent/shopflow/internal/config"
)

// Wave is one pool of virtual users activated at Offset from run start.
type Wave struct {
	Name         string
	Offset       time.Duration
	Size         int
	FirstOrdinal int

	// Iterations per member. Zero means loop until Duration elapses.
	Iterations int
	// MaxDuration caps a counted wave; in-flight iterations are cancelled.
	MaxDuration time.Duration
	// Duration and GracefulStop shape the sustained pool.
	Duration     time.Duration
	GracefulStop time.Duration
}

// Sustained reports whether the wave runs for a wall-clock duration instead
// of a fixed iteration count.
func (w Wave) Sustained() bool {
	return w.Iterations == 0
}

// Ordinals returns the global ordinals of the wave's members.
func (w Wave) Ordinals() []int {
	out := make([]int, w.Size)
	for i := range out {
		out[i] = w.FirstOrdinal + i
	}
	return out
}

var ErrNoVirtualUsers = errors.New("runner: vus must be >= 1")

// PlanWaves partitions cfg.VUs into waves. In iterations mode the first two
// waves default to 30% of the budget each (at least one user) and the third
// takes the remainder; waves that end up empty are left out. Duration mode
// yields a single sustained pool.
func PlanWaves(cfg config.Config) ([]Wave, error) {
	n := cfg.VUs
	if n < 1 {
		return nil, ErrNoVirtualUsers
	}

	if cfg.Mode == config.TestModeDuration {
		return []Wave{{
			Name:         "sustained",
			Size:         n,
			FirstOrdinal: 1,
			Duration:     cfg.Duration,
			GracefulStop: cfg.GracefulStop,
		}}, nil
	}

	if cfg.Iterations < 1 {
		return nil, fmt.Errorf("runner: iterations must be >= 1, got %d", cfg.Iterations)
	}

	w1, w2 := cfg.WaveSizes()
	if w1+w2 > n {
		return nil, fmt.Errorf("runner: wave1 (%d) + wave2 (%d) exceeds vus (%d)", w1, w2, n)
	}
	sizes := []int{w1, w2, n - w1 - w2}

	waves := make([]Wave, 0, len(sizes))
	next := 1
	for k, size := range sizes {
		if size == 0 {
			continue
		}
		waves = append(waves, Wave{
			Name:         fmt.Sprintf("wave%d", k+1),
			Offset:       time.Duration(k) * cfg.WaveGap,
			Size:         size,
			FirstOrdinal: next,
			Iterations:   cfg.Iterations,
			MaxDuration:  cfg.MaxDuration,
		})
		next += size
	}
	return waves, nil
}

// TotalVUs sums the sizes of the planned waves.
func TotalVUs(waves []Wave) int {
	total := 0
	for _, w := range waves {
		total += w.Size
	}
	return total
}
