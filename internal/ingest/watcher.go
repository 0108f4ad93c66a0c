package ingest

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/common"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

const defaultWatchBuffer = 256

// WatchConfig configures a folder watch.
type WatchConfig struct {
	Dir         string              // watched non-recursively, must exist
	Extensions  map[string]struct{} // lowercased sans '.'; empty -> defaults
	SettleDelay time.Duration       // wait before re-checking a freshly created file
	Identity    constants.IdentityStrategy
	Buffer      int
}

// Watcher turns file creation events into Documents.
// It is not restartable: after Stop the Documents channel is closed for good.
type Watcher struct {
	cfg    WatchConfig
	logger *slog.Logger
	fsw    *fsnotify.Watcher
	out    chan entity.Document

	cancel   context.CancelFunc
	settles  sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// StartWatcher subscribes to cfg.Dir. A missing directory is a startup error.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, common.Mark(errors.Wrapf(err, "watch dir %s", cfg.Dir), common.ErrInvalidInput)
	}
	if !info.IsDir() {
		return nil, common.Mark(errors.Newf("watch path %s is not a directory", cfg.Dir), common.ErrInvalidInput)
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultWatchBuffer
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, errors.Wrap(err, "fsnotify")
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		_ = fsw.Close()
		logger.Error("failed to add watch directory", "dir", cfg.Dir, "error", err)
		return nil, errors.Wrapf(err, "watch %s", cfg.Dir)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		cfg:    cfg,
		logger: logger,
		fsw:    fsw,
		out:    make(chan entity.Document, cfg.Buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(runCtx)

	logger.Info("ingest.watch.started",
		"dir", cfg.Dir,
		"extensions", extList(cfg.Extensions),
		"settle_delay", cfg.SettleDelay,
	)
	return w, nil
}

// Documents streams settled documents until the watcher stops.
func (w *Watcher) Documents() <-chan entity.Document { return w.out }

// Produce implements Source.
func (w *Watcher) Produce(context.Context) (<-chan entity.Document, error) {
	return w.out, nil
}

// Stop cancels the subscription and waits for the event loop and every pending
// settle timer to finish. Nothing is delivered once Stop returns.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		<-w.done
		w.logger.Info("ingest.watch.stopped", "dir", w.cfg.Dir)
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer func() {
		w.settles.Wait()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("failed to close fsnotify watcher", "error", err)
		}
		close(w.out)
		close(w.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) {
		return
	}
	if !Qualifies(ev.Name, w.cfg.Extensions) {
		w.logger.Debug("ingest.watch.ignored", "path", ev.Name)
		return
	}
	w.settles.Add(1)
	go w.settle(ctx, ev.Name)
}

func (w *Watcher) settle(ctx context.Context, path string) {
	defer w.settles.Done()

	if w.cfg.SettleDelay > 0 {
		t := time.NewTimer(w.cfg.SettleDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		w.logger.Debug("ingest.watch.vanished", "path", path)
		return
	}
	if info.IsDir() {
		return
	}

	doc, err := NewDocument(path, constants.SourceWatchedFolder, w.cfg.Identity)
	if err != nil {
		w.logger.Warn("ingest.watch.document_failed", "path", path, "error", err)
		return
	}
	if w.deliver(ctx, doc) {
		w.logger.Debug("ingest.watch.forwarded", "document_id", doc.ID, "path", path)
	}
}

// deliver sends doc unless shutdown has begun. Nothing is buffered once ctx is done,
// even when out has room.
func (w *Watcher) deliver(ctx context.Context, doc entity.Document) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case <-ctx.Done():
		return false
	case w.out <- doc:
		return true
	}
}
