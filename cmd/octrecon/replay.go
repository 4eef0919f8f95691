package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"octrecon/internal/models"
	"octrecon/pkg/calibration"
	"octrecon/pkg/config"
	"octrecon/pkg/export"
	"octrecon/pkg/fringe"
	"octrecon/pkg/reconstruction"
	"octrecon/pkg/ringbuffer"
	"octrecon/pkg/visualization"
	"octrecon/pkg/worker"
)

type replayFlags struct {
	cores         int
	aLineSize     int
	capacity      int
	calibration   string
	start         int
	count         int
	intervalMs    int
	loop          bool
	watch         bool
	refresh       bool
	exportImages  bool
	exportDir     string
	catalog       string
	snapshotDir   string
	snapshotEvery int
}

func newReplayCommand(a *app) *cobra.Command {
	var f replayFlags
	cmd := &cobra.Command{
		Use:   "replay <path>",
		Short: "Reconstruct a recorded .bin file or a directory of .dat frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			fs := cmd.Flags()
			if fs.Changed("cores") {
				cfg.Processing.NumCores = f.cores
			}
			if fs.Changed("aline-size") {
				cfg.Processing.ALineSize = f.aLineSize
			}
			if fs.Changed("buffer") {
				cfg.Processing.BufferCapacity = f.capacity
			}
			if fs.Changed("calibration") {
				cfg.Calibration.Dir = f.calibration
			}
			if fs.Changed("interval") {
				cfg.Replay.IntervalMs = f.intervalMs
			}
			if fs.Changed("loop") {
				cfg.Replay.Loop = f.loop
			}
			if fs.Changed("export") {
				cfg.Export.SaveImages = f.exportImages
			}
			if fs.Changed("export-dir") {
				cfg.Export.Dir = f.exportDir
			}
			if fs.Changed("catalog") {
				cfg.Export.Catalog = f.catalog
			}
			if fs.Changed("snapshot-dir") {
				cfg.Display.SnapshotDir = f.snapshotDir
			}
			if fs.Changed("snapshot-every") {
				cfg.Display.SnapshotEvery = f.snapshotEvery
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return a.replay(cmd.Context(), args[0], f)
		},
	}

	fs := cmd.Flags()
	fs.IntVar(&f.cores, "cores", 0, "CPU cores used per frame (0: all)")
	fs.IntVar(&f.aLineSize, "aline-size", fringe.DefaultALineSize, "samples per A-line")
	fs.IntVar(&f.capacity, "buffer", ringbuffer.DefaultCapacity, "frame slots between reader and worker")
	fs.StringVar(&f.calibration, "calibration", "calibration", "directory holding the calibration files")
	fs.IntVar(&f.start, "start", 0, "first frame to replay")
	fs.IntVar(&f.count, "count", 0, "number of frames per pass (0: all)")
	fs.IntVar(&f.intervalMs, "interval", 0, "minimum milliseconds between frames")
	fs.BoolVar(&f.loop, "loop", false, "restart from the first frame until interrupted")
	fs.BoolVar(&f.watch, "watch", false, "reload reconstruction parameters when the config file changes")
	fs.BoolVar(&f.refresh, "refresh-background", false, "replace the calibration background with the average of the first frames")
	fs.BoolVar(&f.exportImages, "export", false, "write rect and radial TIFF images for every frame")
	fs.StringVar(&f.exportDir, "export-dir", "export", "export directory")
	fs.StringVar(&f.catalog, "catalog", "", "sqlite catalog recording exported frames")
	fs.StringVar(&f.snapshotDir, "snapshot-dir", "snapshots", "directory for display snapshots")
	fs.IntVar(&f.snapshotEvery, "snapshot-every", 0, "save every Nth displayed frame (0: never)")
	return cmd
}

// statusLog is a status sink writing each line to the log.
type statusLog struct {
	log zerolog.Logger
}

func (s statusLog) Status(msg string) {
	s.log.Info().Msg(msg)
}

func (a *app) replay(ctx context.Context, path string, f replayFlags) error {
	cfg := a.cfg
	aLineSize := cfg.Processing.ALineSize

	reader, err := fringe.Open(path, aLineSize)
	if err != nil {
		return err
	}
	a.log.Info().
		Str("sequence", reader.Sequence()).
		Int("frames", reader.Len()).
		Int("linesPerFrame", reader.LinesPerFrame()).
		Str("frameSize", humanize.IBytes(uint64(reader.FrameBytes()))).
		Msg("opened recording")

	cal, err := a.loadCalibration(reader, cfg)
	if err != nil {
		return err
	}

	store := &calibration.Store{}
	store.Swap(cal)
	if f.refresh {
		bg, err := calibration.BackgroundFromReader(reader, aLineSize, cfg.Calibration.BackgroundFrames)
		if err != nil {
			return err
		}
		if err := store.RefreshBackground(bg); err != nil {
			return err
		}
		a.log.Info().Int("frames", cfg.Calibration.BackgroundFrames).Msg("background refreshed from recording")
	}

	var catalog *export.Catalog
	if cfg.Export.Catalog != "" {
		catalog, err = export.OpenCatalog(cfg.Export.Catalog)
		if err != nil {
			return err
		}
		defer catalog.Close()
		a.log.Info().Str("session", catalog.Session()).Str("path", cfg.Export.Catalog).Msg("export catalog opened")
	}

	ring := ringbuffer.New[models.FrameSlot](cfg.Processing.BufferCapacity)
	engine := reconstruction.NewEngine(reconstruction.Options{Workers: cfg.Processing.NumCores})
	snapshot := visualization.NewSnapshot(cfg.Display.SnapshotDir, cfg.Display.SnapshotEvery)

	replayer := fringe.NewReplayer(reader, ring, fringe.ReplayOptions{
		Start:    f.start,
		Count:    f.count,
		Interval: cfg.ReplayInterval(),
		Loop:     cfg.Replay.Loop,
	})
	_, last := replayer.Frames()

	w := worker.New(ring, store, engine, worker.Config{
		ALineSize: aLineSize,
		Params:    cfg.Recon,
		Export:    cfg.Export.SaveImages,
		Total:     last,
		Display:   snapshot,
		Exporter:  export.NewDirSink(cfg.Export.Dir, catalog),
		Status:    statusLog{log: a.log},
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.Run()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		w.Stop()
		ring.Quit()
		return nil
	})
	g.Go(func() error {
		defer cancel()
		if err := replayer.Run(gctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		waitDrained(gctx, ring)
		return nil
	})
	if f.watch {
		watcher := config.NewParamsWatcher(a.cfgPath, w.SetParams)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	start := time.Now()
	if err := g.Wait(); err != nil {
		return err
	}

	ws, rs := w.Stats(), ring.Stats()
	a.log.Info().
		Uint64("reconstructed", ws.Reconstructed).
		Uint64("skipped", ws.Skipped).
		Uint64("exportErrors", ws.ExportErrors).
		Uint64("dropped", rs.Dropped).
		Dur("elapsed", time.Since(start)).
		Msg("replay finished")

	if snapshot.Shown() > 0 && cfg.Display.SnapshotDir != "" {
		return a.saveLastFrame(snapshot, cfg.Display.SnapshotDir)
	}
	return nil
}

// saveLastFrame writes the last combined frame and its rect part, which sits
// right of the square radial image.
func (a *app) saveLastFrame(snapshot *visualization.Snapshot, dir string) error {
	last, index, _, err := snapshot.Latest()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "last.png")
	if err := snapshot.Save(path); err != nil {
		return err
	}
	mean, err := snapshot.MeanIntensity()
	if err != nil {
		return err
	}
	a.log.Info().Int("frame", index).Str("path", path).Float64("meanIntensity", mean).Msg("saved last frame")

	b := last.Bounds()
	if b.Dx() <= b.Dy() {
		return nil
	}
	rect, err := snapshot.Region(image.Rect(b.Dy(), 0, b.Dx(), b.Dy()))
	if err != nil {
		return err
	}
	return visualization.SaveImage(rect, filepath.Join(dir, "last-rect.png"))
}

// loadCalibration loads the calibration directory. Without calibration files
// the recording itself provides the background and the phase table is the
// identity.
func (a *app) loadCalibration(reader *fringe.Reader, cfg *config.Config) (*calibration.Data, error) {
	aLineSize := cfg.Processing.ALineSize
	if calibration.HasFiles(cfg.Calibration.Dir) {
		cal, err := calibration.LoadDir(aLineSize, cfg.Calibration.Dir)
		if err != nil {
			return nil, fmt.Errorf("load calibration: %w", err)
		}
		a.log.Info().Str("dir", cfg.Calibration.Dir).Msg("calibration loaded")
		return cal, nil
	}

	a.log.Warn().
		Str("dir", cfg.Calibration.Dir).
		Msg("no calibration files, using an identity phase table and a background from the recording")
	bg, err := calibration.BackgroundFromReader(reader, aLineSize, cfg.Calibration.BackgroundFrames)
	if err != nil {
		return nil, err
	}
	return calibration.Identity(aLineSize).WithBackground(bg)
}

// waitDrained returns once the worker has taken every produced frame or ctx
// is done.
func waitDrained(ctx context.Context, ring *ringbuffer.Ring[models.FrameSlot]) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !ring.Empty() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
