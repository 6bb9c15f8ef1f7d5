package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/openfroyo/deckhand/pkg/config"
	"github.com/openfroyo/deckhand/pkg/policy"
	"github.com/rs/zerolog"
)

// watchDeclarations calls converge once, then again after every change to
// the declaration sources, until ctx is done. Bursts of events are
// debounced and runs never overlap.
func watchDeclarations(ctx context.Context, sources []string, logger zerolog.Logger, converge func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	files := make(map[string]bool)
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", src, err)
		}
		dir := src
		if !info.IsDir() {
			abs, err := filepath.Abs(src)
			if err != nil {
				return err
			}
			files[abs] = true
			dir = filepath.Dir(src)
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	relevant := func(name string) bool {
		if config.FormatOf(name) == "" {
			return false
		}
		if len(files) == 0 {
			return true
		}
		abs, err := filepath.Abs(name)
		if err != nil {
			return false
		}
		if files[abs] {
			return true
		}
		// A watched directory given directly on the command line.
		for _, src := range sources {
			if info, err := os.Stat(src); err == nil && info.IsDir() {
				if d, _ := filepath.Abs(src); d == filepath.Dir(abs) {
					return true
				}
			}
		}
		return false
	}

	converge()
	logger.Info().Strs("sources", sources).Msg("Watching declarations")

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !relevant(event.Name) {
				continue
			}
			logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Declaration changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(policy.ReloadDelay)
			pending = timer.C

		case <-pending:
			pending = nil
			converge()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
