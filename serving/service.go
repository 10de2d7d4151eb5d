package serving

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"pricelab/apps"
	"pricelab/ml"
	"pricelab/monitoring"
)

// Publisher receives model lifecycle events.
type Publisher interface {
	Publish(t monitoring.EventType, app string, data interface{})
}

type Options struct {
	ModelDir  string
	CacheSize int
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
	Publisher Publisher
	// Debounce delays a reload after the last file event of a burst.
	Debounce time.Duration
}

// Service serves every app's current predictor. Reads are lock free; a reload
// swaps the whole predictor.
type Service struct {
	apps       map[string]*apps.App
	order      []string
	predictors map[string]*atomic.Pointer[Predictor]

	modelDir  string
	cacheSize int
	debounce  time.Duration
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	publisher Publisher

	loadMu sync.Mutex
}

func NewService(defs []*apps.App, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	s := &Service{
		apps:       make(map[string]*apps.App, len(defs)),
		predictors: make(map[string]*atomic.Pointer[Predictor], len(defs)),
		modelDir:   opts.ModelDir,
		cacheSize:  opts.CacheSize,
		debounce:   debounce,
		logger:     logger,
		metrics:    opts.Metrics,
		publisher:  opts.Publisher,
	}
	for _, app := range defs {
		s.apps[app.Name] = app
		s.order = append(s.order, app.Name)
		s.predictors[app.Name] = &atomic.Pointer[Predictor]{}
	}
	return s
}

// Apps returns the served apps in display order.
func (s *Service) Apps() []*apps.App {
	out := make([]*apps.App, len(s.order))
	for i, name := range s.order {
		out[i] = s.apps[name]
	}
	return out
}

func (s *Service) App(name string) (*apps.App, error) {
	app, ok := s.apps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apps.ErrUnknownApp, name)
	}
	return app, nil
}

// LoadAll loads every app. Apps without artifacts are logged and skipped.
func (s *Service) LoadAll() {
	for _, name := range s.order {
		if err := s.Load(name); err != nil {
			if errors.Is(err, ErrModelNotLoaded) {
				s.logger.Warn("no trained model, run the trainer first", zap.String("app", name))
				continue
			}
			s.logger.Error("model load failed", zap.String("app", name), zap.Error(err))
		}
	}
}

// Load rebuilds the app's predictor from disk and swaps it in. On failure the
// previous predictor, if any, keeps serving.
func (s *Service) Load(name string) error {
	app, err := s.App(name)
	if err != nil {
		return err
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	predictor, err := LoadPredictor(app, s.modelDir, s.cacheSize)
	s.metrics.ObserveReload(name, err)
	if err != nil {
		if s.publisher != nil && !errors.Is(err, ErrModelNotLoaded) {
			s.publisher.Publish(monitoring.ModelReloadFailed, name, map[string]string{"error": err.Error()})
		}
		return err
	}

	previous := s.predictors[name].Swap(predictor)
	s.metrics.SetModelLoaded(name, true)
	s.logger.Info("model loaded",
		zap.String("app", name),
		zap.String("model_type", predictor.Model.Type()),
		zap.Int("features", len(predictor.Schema.Features)),
	)
	if s.publisher != nil {
		s.publisher.Publish(monitoring.ModelLoaded, name, map[string]interface{}{
			"model_type": predictor.Model.Type(),
			"features":   len(predictor.Schema.Features),
			"metrics":    predictor.Schema.Metrics,
			"trained_at": predictor.Schema.TrainedAt,
		})
		if previous != nil && predictor.Schema.TrainedAt.After(previous.Schema.TrainedAt) {
			s.publisher.Publish(monitoring.TrainingCompleted, name, map[string]interface{}{
				"metrics":    predictor.Schema.Metrics,
				"trained_at": predictor.Schema.TrainedAt,
			})
		}
	}
	return nil
}

// Predictor returns the app's current predictor.
func (s *Service) Predictor(name string) (*Predictor, error) {
	ptr, ok := s.predictors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apps.ErrUnknownApp, name)
	}
	p := ptr.Load()
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, name)
	}
	return p, nil
}

// Predict runs one record through the app's current predictor.
func (s *Service) Predict(name string, record ml.Record) (Prediction, error) {
	start := time.Now()
	p, err := s.Predictor(name)
	if err != nil {
		return Prediction{}, err
	}
	out, err := p.Predict(record)
	s.metrics.ObservePrediction(name, time.Since(start), err)
	if err == nil && p.cache != nil {
		s.metrics.ObserveCache(name, out.Cached)
	}
	return out, err
}

// Watch reloads an app whenever its artifacts are replaced, until ctx ends.
func (s *Service) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, name := range s.order {
		dir := filepath.Join(s.modelDir, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	s.logger.Info("watching model artifacts", zap.String("dir", s.modelDir))

	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, ok := s.appForEvent(event)
			if !ok {
				continue
			}
			if t, ok := timers[name]; ok {
				t.Reset(s.debounce)
				continue
			}
			timers[name] = time.AfterFunc(s.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := s.Load(name); err != nil {
					s.logger.Warn("model reload failed, keeping previous model", zap.String("app", name), zap.Error(err))
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}

// appForEvent maps a file event to the app whose artifact changed. Temp files
// written before the atomic rename are ignored.
func (s *Service) appForEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return "", false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || (base != "model.json" && base != "features.json") {
		return "", false
	}
	name := filepath.Base(filepath.Dir(event.Name))
	if _, ok := s.apps[name]; !ok {
		return "", false
	}
	return name, true
}
