package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/meeting-copilot/internal/logging"
)

// MultiSource runs several sources into one sink. Sources that fail to
// start are skipped; Start only fails when none could start.
type MultiSource struct {
	sources []Source

	mu      sync.Mutex
	started []Source
	failed  map[string]error
}

func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{sources: sources}
}

func (m *MultiSource) Name() string {
	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Active is the number of sources currently running.
func (m *MultiSource) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

// Failures returns the start error of every source that could not start.
func (m *MultiSource) Failures() map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]error, len(m.failed))
	for k, v := range m.failed {
		out[k] = v
	}
	return out
}

func (m *MultiSource) Start(ctx context.Context, sink Sink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started != nil {
		return ErrAlreadyStarted
	}
	m.failed = make(map[string]error)
	// one extra hold keeps a fast source from ending the stream before
	// the rest have started
	fan := &fanInSink{Sink: sink, active: len(m.sources) + 1}
	var errs []error
	for _, s := range m.sources {
		if err := s.Start(ctx, fan); err != nil {
			fan.done()
			m.failed[s.Name()] = err
			errs = append(errs, err)
			logging.Warnw("capture source failed to start; continuing without it", "source", s.Name(), "err", err)
			continue
		}
		m.started = append(m.started, s)
	}
	if len(m.started) == 0 {
		m.started = nil
		return fmt.Errorf("no capture source started: %w", errors.Join(errs...))
	}
	fan.EndOfStream()
	return nil
}

func (m *MultiSource) Stop() error {
	m.mu.Lock()
	started := m.started
	m.started = nil
	m.mu.Unlock()
	var errs []error
	for _, s := range started {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fanInSink forwards EndOfStream once every member has ended.
type fanInSink struct {
	Sink
	mu     sync.Mutex
	active int
}

// done retires a member without signalling.
func (f *fanInSink) done() {
	f.mu.Lock()
	f.active--
	f.mu.Unlock()
}

func (f *fanInSink) EndOfStream() {
	f.mu.Lock()
	f.active--
	last := f.active == 0
	f.mu.Unlock()
	if last {
		f.Sink.EndOfStream()
	}
}
