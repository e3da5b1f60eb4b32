// Package startup brings the service's backing dependencies up in dependency order, retrying with a
// Fibonacci backoff, and tears them down in reverse.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

type Dependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Status int

const (
	StatusPending Status = iota
	StatusStarted
	StatusStopped
	StatusFailed
)

// Func adapts plain functions to a Dependency. A nil StopFn makes Stop a no-op.
type Func struct {
	Name    string
	Needs   []string
	StartFn func(ctx context.Context) error
	StopFn  func(ctx context.Context) error
}

func (f Func) GetName() string     { return f.Name }
func (f Func) DependsOn() []string { return f.Needs }

func (f Func) Start(ctx context.Context) error {
	return f.StartFn(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx)
}

type Startup struct {
	dependencies map[string]Dependency
	order        []string
	started      []string
	statuses     map[string]Status
	logger       ectologger.Logger
	maxAttempts  int
	backoff      time.Duration
}

// New creates a startup sequence. backoff is the unit of the Fibonacci wait between attempts.
func New(logger ectologger.Logger, maxAttempts int, backoff time.Duration) *Startup {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Startup{
		dependencies: make(map[string]Dependency),
		statuses:     make(map[string]Status),
		logger:       logger,
		maxAttempts:  maxAttempts,
		backoff:      backoff,
	}
}

// Add registers a dependency. Dependencies start in registration order once their own
// dependencies are up.
func (s *Startup) Add(dependency Dependency) {
	if _, ok := s.dependencies[dependency.GetName()]; !ok {
		s.order = append(s.order, dependency.GetName())
	}
	s.dependencies[dependency.GetName()] = dependency
}

func (s *Startup) Status(name string) Status {
	return s.statuses[name]
}

func (s *Startup) Start(ctx context.Context) error {
	var lastErr error

	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithFields(map[string]any{"attempt": attempt}).Infof("Beginning startup attempt %d", attempt)

		lastErr = nil
		for _, name := range s.order {
			if err := s.startDependency(ctx, name, nil); err != nil {
				s.logger.WithError(err).Errorf("Startup dependency '%s' attempt %d failed", name, attempt)
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}

		wait := time.Duration(a) * s.backoff
		s.logger.Infof("Retrying in %s (attempt %d/%d)", wait, attempt, s.maxAttempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startDependency(ctx context.Context, name string, path []string) error {
	if s.statuses[name] == StatusStarted {
		return nil
	}
	dependency, ok := s.dependencies[name]
	if !ok {
		return fmt.Errorf("unknown startup dependency '%s'", name)
	}
	for _, seen := range path {
		if seen == name {
			return fmt.Errorf("startup dependency cycle at '%s'", name)
		}
	}

	for _, needed := range dependency.DependsOn() {
		if err := s.startDependency(ctx, needed, append(path, name)); err != nil {
			return err
		}
	}

	log := s.logger.WithFields(map[string]any{"dependency": name})
	log.Infof("Starting dependency '%s'", name)
	s.statuses[name] = StatusPending
	if err := dependency.Start(ctx); err != nil {
		s.statuses[name] = StatusFailed
		return fmt.Errorf("failed to start '%s': %w", name, err)
	}
	s.statuses[name] = StatusStarted
	s.started = append(s.started, name)
	return nil
}

// Stop stops every started dependency in reverse start order. It keeps going past failures and
// returns the first one.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.started) - 1; i >= 0; i-- {
		name := s.started[i]
		log := s.logger.WithFields(map[string]any{"dependency": name})

		log.Infof("Stopping dependency '%s'", name)
		if err := s.dependencies[name].Stop(ctx); err != nil {
			log.WithError(err).Errorf("Failed to stop dependency '%s'", name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.statuses[name] = StatusStopped
	}
	s.started = nil
	return firstErr
}
