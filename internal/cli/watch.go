package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/roach88/triage/internal/pipeline"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Once   bool
	Settle time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Triage message files as they appear",
		Long: `Watch a directory for message JSON files and triage each one.

Files are processed one at a time in name order. A file that completes,
skips included, moves to <dir>/done; one that cannot be read or fails in
the pipeline moves to <dir>/failed. Files already present are processed
first. A file is picked up once it has not changed for --settle.

Examples:
  triage watch ~/Mail/triage-inbox
  triage watch ./inbox --once`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "process the files present now and exit")
	cmd.Flags().DurationVar(&opts.Settle, "settle", 500*time.Millisecond, "quiet period before a changed file is processed")

	return cmd
}

func runWatch(opts *WatchOptions, dir string, cmd *cobra.Command) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("watch directory not found: %s", dir))
	}
	if opts.Settle <= 0 {
		return NewExitError(ExitCommandError, "--settle must be positive")
	}
	for _, sub := range []string{"done", "failed"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create "+sub+" directory", err)
		}
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := opts.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w := &dirWatcher{dir: dir, pipeline: a.pipeline, logger: a.logger.With("watch_dir", dir), settle: opts.Settle}
	if err := w.drain(ctx); err != nil {
		return err
	}
	if opts.Once {
		return opts.formatter(cmd).Success(w.stats, fmt.Sprintf("processed=%d failed=%d\n", w.stats.Processed, w.stats.Failed))
	}
	return w.watch(ctx)
}

// WatchStats counts handled files.
type WatchStats struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type dirWatcher struct {
	dir      string
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	settle   time.Duration
	stats    WatchStats
}

func isMessageFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}

// drain processes every message file currently in the directory.
func (w *dirWatcher) drain(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read watch directory", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && isMessageFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if ctx.Err() != nil {
			return nil
		}
		w.handle(ctx, filepath.Join(w.dir, name))
	}
	return nil
}

// watch processes files as they settle until ctx is done.
func (w *dirWatcher) watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start watcher", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return WrapExitError(ExitCommandError, "failed to watch directory", err)
	}
	w.logger.Info("watch_started")

	// Files created between drain and Add.
	if err := w.drain(ctx); err != nil {
		return err
	}

	pending := map[string]time.Time{}
	tick := time.NewTicker(w.settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch_stopped", "processed", w.stats.Processed, "failed", w.stats.Failed)
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Dir(ev.Name) != filepath.Clean(w.dir) || !isMessageFile(filepath.Base(ev.Name)) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				pending[ev.Name] = time.Now()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch_error", "error", err)

		case now := <-tick.C:
			var ready []string
			for path, at := range pending {
				if now.Sub(at) >= w.settle {
					ready = append(ready, path)
				}
			}
			sort.Strings(ready)
			for _, path := range ready {
				delete(pending, path)
				if _, err := os.Stat(path); err != nil {
					continue
				}
				w.handle(ctx, path)
			}
		}
	}
}

// handle processes one file and moves it to done or failed.
func (w *dirWatcher) handle(ctx context.Context, path string) {
	log := w.logger.With("file", filepath.Base(path))

	dest := "done"
	msg, err := readMessage(path, nil)
	if err == nil {
		var res *pipeline.Result
		res, err = w.pipeline.Process(ctx, msg)
		if err == nil {
			log.Info("watch_processed", "run_id", res.RunID, "status", string(res.Status))
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		dest = "failed"
		w.stats.Failed++
		log.Error("watch_failed", "error", err)
	} else {
		w.stats.Processed++
	}

	target := filepath.Join(w.dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		log.Error("watch_move_failed", "target", target, "error", err)
	}
}
