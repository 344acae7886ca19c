package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const keywordsReloadDebounce = 500 * time.Millisecond

// WatchIntentKeywords reloads the keywords file whenever it is written or
// recreated and passes the result to onChange. The parent directory is
// watched because editors often replace files instead of writing in place.
// A file that fails to parse is logged and skipped. Watching stops when ctx
// is done.
func WatchIntentKeywords(ctx context.Context, filePath string, onChange func(IntentKeywords)) error {
	return watchIntentKeywords(ctx, filePath, keywordsReloadDebounce, onChange)
}

func watchIntentKeywords(ctx context.Context, filePath string, debounce time.Duration, onChange func(IntentKeywords)) error {
	if filePath == "" {
		return fmt.Errorf("no intent keywords file configured")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", filePath, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	filename := filepath.Base(absPath)
	log.Printf("👁️  [KEYWORDS] Watching %s for changes (hot-reload enabled)", filePath)

	go func() {
		defer watcher.Close()

		var debounceTimer *time.Timer
		defer func() {
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filename {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounce, func() {
					if ctx.Err() != nil {
						return
					}
					keywords, err := LoadIntentKeywords(absPath)
					if err != nil {
						log.Printf("❌ [KEYWORDS] Reload of %s failed, keeping current keywords: %v", filePath, err)
						return
					}
					onChange(keywords)
					log.Printf("✅ [KEYWORDS] Reloaded intent keywords from %s", filePath)
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️  [KEYWORDS] File watcher error: %v", err)
			}
		}
	}()

	return nil
}
