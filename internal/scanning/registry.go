package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zombor/receipt-ocr/internal/parsing"
)

// Registry holds the initialized OCR engines by name. It is built once at
// startup and passed to whoever needs to recognize text.
type Registry struct {
	mu          sync.RWMutex
	engines     map[string]Engine
	order       []string
	defaultName string
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Engine),
	}
}

// Register initializes engine and adds it under name. The engine is only
// added when initialization succeeds. The first engine registered becomes
// the default.
func (r *Registry) Register(ctx context.Context, name string, engine Engine, languages []string) error {
	if name == "" {
		return fmt.Errorf("engine name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.engines[name]; ok {
		return fmt.Errorf("engine %q already registered", name)
	}

	if err := engine.Initialize(ctx, languages); err != nil {
		slog.Error("Failed to register OCR engine", "engine", name, "error", err)
		return fmt.Errorf("initializing engine %q: %w", name, err)
	}

	r.engines[name] = engine
	r.order = append(r.order, name)
	if r.defaultName == "" {
		r.defaultName = name
	}
	slog.Info("Registered OCR engine", "engine", name, "languages", languages)
	return nil
}

// SetDefault selects the engine used when a caller does not name one
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.engines[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEngine, name)
	}
	r.defaultName = name
	return nil
}

// Default returns the name of the default engine, or "" when none is registered
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Names returns the registered engine names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Get returns the engine registered under name; an empty name selects the default
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(name)
}

func (r *Registry) lookup(name string) (Engine, error) {
	if name == "" {
		name = r.defaultName
	}
	engine, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, name)
	}
	return engine, nil
}

// Info describes the engine registered under name
func (r *Registry) Info(name string) (EngineInfo, error) {
	engine, err := r.Get(name)
	if err != nil {
		return EngineInfo{}, err
	}
	return engine.Info(), nil
}

// Recognize runs the named engine (or the default when name is empty) on
// imageData and returns the engine name actually used with its fragments.
func (r *Registry) Recognize(ctx context.Context, name string, imageData []byte, contentType string) (string, []parsing.Fragment, error) {
	r.mu.RLock()
	if name == "" {
		name = r.defaultName
	}
	engine, err := r.lookup(name)
	r.mu.RUnlock()
	if err != nil {
		return name, nil, err
	}

	fragments, err := engine.RecognizeText(ctx, imageData, contentType)
	if err != nil {
		return name, nil, fmt.Errorf("recognizing text with %s: %w", name, err)
	}
	return name, fragments, nil
}

// Close closes every registered engine
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, name := range r.order {
		if err := r.engines[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing engine %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
