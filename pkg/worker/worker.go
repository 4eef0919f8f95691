// Package worker runs the reconstruction loop: it consumes frames from the
// exchange buffer, reconstructs them and hands the images to the display,
// export and status sinks.
package worker

import (
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"octrecon/internal/models"
	"octrecon/pkg/calibration"
	"octrecon/pkg/logging"
	"octrecon/pkg/reconstruction"
	"octrecon/pkg/ringbuffer"
)

// NoCalibrationMessage is the status emitted for frames that arrive before a
// calibration is installed.
const NoCalibrationMessage = "no calibration installed"

// DisplaySink receives the combined image of every reconstructed frame.
// The image is reused for later frames, so Show must copy what it keeps.
type DisplaySink interface {
	Show(combined *image.Gray, current, total int)
}

// ExportSink persists the rect and radial images of a frame.
type ExportSink interface {
	Export(index int, rect, radial *image.Gray) error
}

// StatusSink receives one human readable line per frame.
type StatusSink interface {
	Status(msg string)
}

// Config holds the initial worker settings and its sinks. Nil sinks are
// skipped.
type Config struct {
	ALineSize int
	Params    reconstruction.Params
	Export    bool
	Total     int

	Display  DisplaySink
	Exporter ExportSink
	Status   StatusSink

	// Logger defaults to the package logger
	Logger *zerolog.Logger
}

// Stats counts what the worker did with the frames it consumed.
type Stats struct {
	Reconstructed uint64
	Skipped       uint64
	ExportErrors  uint64
}

// Worker is the single consumer of a frame ring. Its setters may be called
// from any goroutine and take effect from the next frame on.
type Worker struct {
	ring   *ringbuffer.Ring[models.FrameSlot]
	store  *calibration.Store
	engine *reconstruction.Engine

	params    atomic.Pointer[reconstruction.Params]
	aLineSize atomic.Int64
	export    atomic.Bool
	total     atomic.Int64
	stop      atomic.Bool

	display  DisplaySink
	exporter ExportSink
	status   StatusSink
	log      zerolog.Logger

	reconstructed atomic.Uint64
	skipped       atomic.Uint64
	exportErrors  atomic.Uint64
}

// New creates a worker consuming from ring. Calibration is read from store at
// the start of every frame.
func New(ring *ringbuffer.Ring[models.FrameSlot], store *calibration.Store, engine *reconstruction.Engine, cfg Config) *Worker {
	w := &Worker{
		ring:     ring,
		store:    store,
		engine:   engine,
		display:  cfg.Display,
		exporter: cfg.Exporter,
		status:   cfg.Status,
	}
	if cfg.Logger != nil {
		w.log = *cfg.Logger
	} else {
		w.log = logging.Component("worker")
	}
	w.SetParams(cfg.Params)
	w.SetALineSize(cfg.ALineSize)
	w.SetExport(cfg.Export)
	w.SetTotal(cfg.Total)
	return w
}

// Run consumes frames until Stop is called or the ring quits. Stop is checked
// between frames, so a frame in progress always completes.
func (w *Worker) Run() {
	w.log.Info().Int("aLineSize", w.ALineSize()).Msg("reconstruction worker started")
	for !w.stop.Load() {
		if !w.ring.Consume(w.process) {
			break
		}
	}
	s := w.Stats()
	w.log.Info().
		Uint64("reconstructed", s.Reconstructed).
		Uint64("skipped", s.Skipped).
		Msg("reconstruction worker stopped")
}

// SetCalibration installs a new calibration for the following frames.
func (w *Worker) SetCalibration(d *calibration.Data) {
	w.store.Swap(d)
}

// SetParams replaces the reconstruction parameters.
func (w *Worker) SetParams(p reconstruction.Params) {
	w.params.Store(&p)
}

// Params returns the parameters the next frame will use.
func (w *Worker) Params() reconstruction.Params {
	return *w.params.Load()
}

// SetALineSize sets the number of samples per A-line.
func (w *Worker) SetALineSize(n int) {
	w.aLineSize.Store(int64(n))
}

// ALineSize returns the current number of samples per A-line.
func (w *Worker) ALineSize() int {
	return int(w.aLineSize.Load())
}

// SetExport enables or disables the export sink.
func (w *Worker) SetExport(enabled bool) {
	w.export.Store(enabled)
}

// SetTotal sets the frame count reported with display progress.
func (w *Worker) SetTotal(total int) {
	w.total.Store(int64(total))
}

// Stop makes Run return after the current frame. A worker blocked waiting
// for a frame is only woken by the next frame or by quitting the ring.
func (w *Worker) Stop() {
	w.stop.Store(true)
}

// Stats returns the worker counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Reconstructed: w.reconstructed.Load(),
		Skipped:       w.skipped.Load(),
		ExportErrors:  w.exportErrors.Load(),
	}
}

func (w *Worker) process(slot *models.FrameSlot) {
	start := time.Now()

	cal := w.store.Load()
	if cal == nil {
		w.skip(NoCalibrationMessage)
		return
	}
	if !slot.Populated() {
		w.skipped.Add(1)
		return
	}
	aLineSize := w.ALineSize()
	if aLineSize <= 0 || len(slot.Fringe)%aLineSize != 0 {
		w.log.Error().
			Int("frame", slot.Index).
			Int("samples", len(slot.Fringe)).
			Int("aLineSize", aLineSize).
			Msg("fringe is not a whole number of A-lines")
		w.skip(fmt.Sprintf("Frame %d skipped: %d samples is not a multiple of A-line size %d",
			slot.Index, len(slot.Fringe), aLineSize))
		return
	}

	current := w.params.Load()
	p := *current

	rect, err := w.engine.Rect(slot.Rect, cal, slot.Fringe, aLineSize, p)
	if err != nil {
		w.log.Error().Err(err).Int("frame", slot.Index).Msg("reconstruction failed")
		w.skip(fmt.Sprintf("Frame %d skipped: %v", slot.Index, err))
		return
	}
	slot.Rect = rect
	elapsedRecon := time.Since(start)

	if p.AdditionalOffset != 0 && w.engine.LastOffsets().Aligned {
		w.consumeOffset(current)
	}

	slot.Radial = w.engine.Radial(slot.Radial, slot.Rect, p.PadTop)

	if w.export.Load() && w.exporter != nil {
		if err := w.exporter.Export(slot.Index, slot.Rect, slot.Radial); err != nil {
			w.exportErrors.Add(1)
			w.log.Warn().Err(err).Int("frame", slot.Index).Msg("export failed")
		}
	}

	slot.Combined = Combine(slot.Combined, slot.Radial, slot.Rect)
	if w.display != nil {
		w.display.Show(slot.Combined, slot.Index, int(w.total.Load()))
	}

	w.reconstructed.Add(1)
	elapsedTotal := time.Since(start)
	msg := fmt.Sprintf("Loaded frame %d, recon %.3f ms, total %.3f ms",
		slot.Index, millis(elapsedRecon), millis(elapsedTotal))
	if w.status != nil {
		w.status.Status(msg)
	}
	w.log.Debug().
		Int("frame", slot.Index).
		Float64("reconMs", millis(elapsedRecon)).
		Float64("totalMs", millis(elapsedTotal)).
		Msg("frame loaded")
}

// consumeOffset clears the one-shot additional offset unless the params were
// replaced while the frame was being reconstructed.
func (w *Worker) consumeOffset(used *reconstruction.Params) bool {
	cleared := *used
	cleared.AdditionalOffset = 0
	return w.params.CompareAndSwap(used, &cleared)
}

func (w *Worker) skip(msg string) {
	w.skipped.Add(1)
	if w.status != nil {
		w.status.Status(msg)
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
