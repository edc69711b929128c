package config

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "cvewatch/pkg/logx"
)

// Watch observes the config file and logs a warning when its content
// changes. Configuration is immutable for the process lifetime, so the
// warning is the whole feature: it tells the operator a restart is needed
// before the edit takes effect.
//
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, log logx.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory, not the file: editors replace files via rename,
	// which drops a direct file watch.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(path)
	last := contentHash(target)

	// Debounce: editors commonly emit several events per save.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(300 * time.Millisecond)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", logx.Err(err))
		case <-pending:
			pending = nil
			h := contentHash(target)
			if h == last {
				continue
			}
			last = h
			log.Warn("config file changed on disk; restart to apply", logx.String("path", path))
		}
	}
}

func contentHash(path string) uint64 {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
