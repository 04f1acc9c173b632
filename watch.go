package monit

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"vawter.tech/stopper"
)

// WatchEvent reports one reload triggered by fragment changes
type WatchEvent struct {
	// Path is the last fragment that changed before the reload
	Path string
	// Err is the reload or watcher error, nil on success
	Err error
}

// WatchCleanupFunc stops a watch and waits for its goroutine to exit
type WatchCleanupFunc func() error

// WatchOption configures Watch
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
}

// WithDebounce sets how long fragment changes are coalesced before a reload
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		c.debounce = d
	}
}

// Watch reloads the daemon after each burst of changes to conf.d fragments.
// It must not run concurrently with reconciliations on the same instance.
func (i *Instance) Watch(ctx context.Context, opts ...WatchOption) (<-chan WatchEvent, WatchCleanupFunc, error) {
	cfg := watchConfig{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&cfg)
	}
	dir := i.ConfdPath()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, &OpError{Op: OpReload, Path: dir, Err: err}
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, nil, &OpError{Op: OpReload, Path: dir, Err: err}
	}

	ch := make(chan WatchEvent, 10)
	log := i.logger().WithField("path", dir)

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
		close(ch)
	})

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}

	send := func(sctx *stopper.Context, ev WatchEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-sctx.Stopping():
			return false
		}
	}

	sctx.Go(func(sctx *stopper.Context) error {
		debounce := time.NewTimer(cfg.debounce)
		if !debounce.Stop() {
			<-debounce.C
		}
		sctx.Defer(func() {
			debounce.Stop()
		})

		pending := ""
		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Ext(event.Name) != FragmentExt || event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
					continue
				}
				log.WithFields(logrus.Fields{"file": event.Name, "op": event.Op.String()}).Debug("fragment changed")
				pending = event.Name
				debounce.Reset(cfg.debounce)

			case <-debounce.C:
				if pending == "" {
					continue
				}
				path := pending
				pending = ""
				err := i.Reload(sctx)
				if err != nil && !sctx.IsStopping() {
					log.WithError(err).Warn("reload after fragment change failed")
				}
				if !send(sctx, WatchEvent{Path: path, Err: err}) {
					return nil
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil && !send(sctx, WatchEvent{Err: err}) {
					return nil
				}
			}
		}
		return nil
	})

	return ch, cleanup, nil
}
