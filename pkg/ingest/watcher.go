package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/moderation"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	"github.com/fsnotify/fsnotify"
)

const (
	defaultSettleDelay = 750 * time.Millisecond
	defaultTimeout     = 2 * time.Minute
	queueSize          = 64
)

// Outcome is the analysis of one dropped file. Report is only meaningful when
// Err is nil.
type Outcome struct {
	Path   string
	Result model.AnalysisResult
	Report moderation.Report
	Err    error
}

type ResultHandler func(ctx context.Context, outcome Outcome)

// Watcher analyses every audio file that lands in a directory, one at a time.
type Watcher struct {
	dir      string
	analysis model.AnalysisProvider
	handle   ResultHandler
	settle   time.Duration
	timeout  time.Duration

	jobs  chan string
	ready chan struct{}

	mu      sync.Mutex
	pending map[string]*pendingFile
}

type Option func(*Watcher)

// WithSettleDelay sets how long a file must stay unchanged before it is
// analysed, so half-copied files are not picked up.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) {
		w.settle = d
	}
}

func WithTimeout(d time.Duration) Option {
	return func(w *Watcher) {
		w.timeout = d
	}
}

func NewWatcher(dir string, analysis model.AnalysisProvider, handle ResultHandler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		analysis: analysis,
		handle:   handle,
		settle:   defaultSettleDelay,
		timeout:  defaultTimeout,
		jobs:     make(chan string, queueSize),
		ready:    make(chan struct{}),
		pending:  make(map[string]*pendingFile),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ready is closed once the directory is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// IsAudioFile reports whether the extension maps to an audio MIME type.
func IsAudioFile(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	_, err := model.AudioMIMEType(path)
	return err == nil
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	log := logging.NewLogger(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("error: %v", err)
		return utils.WrapIfNotNil(err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		log.Errorf("error: %v", err)
		return utils.WrapIfNotNil(err, w.dir)
	}
	close(w.ready)
	log.Infof("watching %s for audio files", w.dir)

	var workers sync.WaitGroup
	defer workers.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer w.cancelPending()

	workers.Add(1)
	go func() {
		defer workers.Done()
		w.processQueue(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				if IsAudioFile(event.Name) {
					w.schedule(ctx, event.Name)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("watcher error: %v", err)
		}
	}
}

// pendingFile is the settle timer of one path. A timer that fired while a newer
// event replaced it finds itself gone from the map and does nothing.
type pendingFile struct {
	timer *time.Timer
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scheduleLocked(ctx, path)
}

func (w *Watcher) scheduleLocked(ctx context.Context, path string) {
	if previous, ok := w.pending[path]; ok {
		previous.timer.Stop()
	}
	entry := &pendingFile{}
	w.pending[path] = entry
	entry.timer = time.AfterFunc(w.settle, func() {
		w.settled(ctx, path, entry)
	})
}

func (w *Watcher) settled(ctx context.Context, path string, entry *pendingFile) {
	w.mu.Lock()
	if w.pending[path] != entry {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	select {
	case w.jobs <- path:
	case <-ctx.Done():
	default:
		logging.NewLogger(ctx).Warnf("ingest queue full, skipping %s", path)
	}
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, entry := range w.pending {
		entry.timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.jobs:
			w.process(ctx, path)
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	log := logging.NewLogger(ctx)
	defer utils.RecoverGoroutine("ingest", log)

	outcome := Outcome{Path: path}
	audio, err := model.LoadAudioFile(path)
	if err != nil {
		outcome.Err = err
		w.handle(ctx, outcome)
		return
	}

	analysisCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	result, _, err := w.analysis.Analyze(analysisCtx, audio)
	if err != nil {
		log.Errorf("analysing %s: %v", path, err)
		outcome.Err = err
		w.handle(ctx, outcome)
		return
	}

	outcome.Result = result
	outcome.Report = moderation.Render(result)
	w.handle(ctx, outcome)
}
