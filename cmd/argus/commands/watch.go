package commands

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/cagmero/ARGUS/internal/classify"
	"github.com/cagmero/ARGUS/internal/scanner"
	"github.com/cagmero/ARGUS/internal/types"
)

var flagDebounce time.Duration

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Scan, then re-scan whenever a watched contract or script changes",
		RunE:  runWatch,
	}
	addScanFlags(cmd)
	cmd.Flags().DurationVar(&flagDebounce, "debounce", 500*time.Millisecond, "Quiet period after the last change before re-scanning")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithInterrupt(cmd.Context())
	defer cancel()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer watcher.Close()

	w := &fileWatcher{watcher: watcher, exclude: cfg.ExcludePatterns}
	for _, p := range cfg.TargetPaths {
		if err := w.add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
	}

	scanAndReport := func() error {
		result, err := executeScan(ctx, cmd, cfg)
		if err != nil {
			return err
		}
		recordHistory(ctx, cmd, cfg, result)
		return writeOutput(cmd, cfg, result)
	}

	// the first scan fails fast on configuration errors
	if err := scanAndReport(); err != nil {
		return err
	}
	if !flagQuiet {
		fmt.Fprintln(cmd.ErrOrStderr(), "Watching for changes (Ctrl+C to stop)...")
	}
	return w.loop(ctx, flagDebounce, func() {
		if err := scanAndReport(); err != nil {
			logger.Errorw("re-scan failed", "error", err)
		}
	})
}

type fileWatcher struct {
	watcher *fsnotify.Watcher
	exclude []string
}

// add watches path, every directory below it that is not excluded, or the
// parent directory of a single file.
func (w *fileWatcher) add(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.watcher.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != path && w.excluded(path, p, true) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

func (w *fileWatcher) excluded(root, p string, dir bool) bool {
	if filepath.Base(p) == ".git" {
		return true
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		rel = p
	}
	rel = filepath.ToSlash(rel)
	if dir {
		rel += "/"
	}
	for _, pattern := range w.exclude {
		if scanner.MatchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

// relevant reports whether ev should trigger a re-scan. New directories are
// added to the watch list instead.
func (w *fileWatcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.add(ev.Name); err != nil {
				logger.Warnw("watching new directory", "path", ev.Name, "error", err)
			}
			return false
		}
	}
	if w.excluded(filepath.Dir(ev.Name), ev.Name, false) {
		return false
	}
	return classify.ByExtension(ev.Name) != types.FileTypeUnknown
}

// loop calls onChange once per burst of relevant events, after debounce of
// quiet. onChange runs on the loop goroutine, so scans never overlap.
func (w *fileWatcher) loop(ctx context.Context, debounce time.Duration, onChange func()) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			logger.Debugw("change detected", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			onChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("file watcher error", "error", err)
		}
	}
}
