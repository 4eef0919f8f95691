package fringe

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"octrecon/internal/models"
	"octrecon/pkg/logging"
	"octrecon/pkg/ringbuffer"
)

// Source is a random access frame source such as a Reader.
type Source interface {
	Len() int
	SamplesPerFrame() int
	Read(start, n int, dst []uint16) error
}

// ReplayOptions controls a Replayer.
type ReplayOptions struct {
	// Start is the first frame to replay.
	Start int
	// Count limits the number of frames per pass; 0 replays to the end.
	Count int
	// Interval is the minimum time between two frames; 0 replays as fast as
	// the source can be read.
	Interval time.Duration
	// Loop restarts from Start after the last frame until the context ends.
	Loop bool
	// Logger defaults to the package logger.
	Logger *zerolog.Logger
}

// Replayer is the producer side of the frame ring for recorded data.
type Replayer struct {
	src  Source
	ring *ringbuffer.Ring[models.FrameSlot]
	opts ReplayOptions
	log  zerolog.Logger
}

// NewReplayer creates a replayer feeding ring from src.
func NewReplayer(src Source, ring *ringbuffer.Ring[models.FrameSlot], opts ReplayOptions) *Replayer {
	r := &Replayer{src: src, ring: ring, opts: opts}
	if opts.Logger != nil {
		r.log = *opts.Logger
	} else {
		r.log = logging.Component("replay")
	}
	return r
}

// Frames returns the frame range [first, last) of one pass.
func (r *Replayer) Frames() (int, int) {
	first := min(max(r.opts.Start, 0), r.src.Len())
	last := r.src.Len()
	if r.opts.Count > 0 {
		last = min(last, first+r.opts.Count)
	}
	return first, last
}

// Run resizes every slot of the ring to the source frame size, then produces
// frames until the range is exhausted or ctx is done. Produce never blocks,
// so frames the consumer cannot keep up with are dropped by the ring.
// Run returns nil after a complete pass and ctx.Err() on cancellation.
func (r *Replayer) Run(ctx context.Context) error {
	samples := r.src.SamplesPerFrame()
	r.ring.ForEach(func(s *models.FrameSlot) { s.Resize(samples) })

	first, last := r.Frames()
	if first >= last {
		return fmt.Errorf("%w: nothing to replay in [%d, %d)", ErrRange, first, last)
	}
	r.log.Info().
		Int("first", first).
		Int("last", last).
		Str("frameSize", humanize.IBytes(uint64(samples)*2)).
		Dur("interval", r.opts.Interval).
		Bool("loop", r.opts.Loop).
		Msg("replay started")

	var tick <-chan time.Time
	if r.opts.Interval > 0 {
		ticker := time.NewTicker(r.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	buf := make([]uint16, samples)
	for {
		for i := first; i < last; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.src.Read(i, 1, buf); err != nil {
				return fmt.Errorf("error reading frame %d: %w", i, err)
			}
			r.ring.Produce(func(s *models.FrameSlot) {
				s.Resize(len(buf))
				copy(s.Fringe, buf)
				s.Index = i
			})

			if tick != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-tick:
				}
			}
		}
		if !r.opts.Loop {
			break
		}
	}

	stats := r.ring.Stats()
	r.log.Info().
		Uint64("produced", stats.Produced).
		Uint64("dropped", stats.Dropped).
		Msg("replay finished")
	return nil
}
