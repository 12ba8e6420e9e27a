// Package app assembles the copilot from its configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meeting-copilot/internal/audio"
	"github.com/meeting-copilot/internal/capture"
	"github.com/meeting-copilot/internal/config"
	"github.com/meeting-copilot/internal/control"
	"github.com/meeting-copilot/internal/logging"
	"github.com/meeting-copilot/internal/metrics"
	"github.com/meeting-copilot/internal/voice"
	"github.com/meeting-copilot/internal/wake"
	"github.com/meeting-copilot/llm"
)

// Options override the components New would otherwise build from the
// configuration. Zero fields select the configured providers.
type Options struct {
	Version     string
	Out         io.Writer
	Transcriber voice.Transcriber
	Chat        llm.ChatCompleter
	Synthesizer voice.Synthesizer
	// Sources builds a capture source by audio_source name.
	Sources func(name string) (capture.Source, error)
}

// Runner owns the pipeline, the active capture source and the control
// server. It implements control.Controller.
type Runner struct {
	cfg       *config.Config
	pipeline  *voice.Pipeline
	metrics   *metrics.Metrics
	hub       *control.Hub
	server    *control.Server
	console   *voice.ConsolePresenter
	presenter voice.Presenter
	sources   func(name string) (capture.Source, error)

	switchMu   sync.Mutex
	mu         sync.Mutex
	runCtx     context.Context
	source     capture.Source
	sourceName string
	degraded   map[string]string
}

// New wires every component. Nothing is started until Run.
func New(cfg *config.Config, opts Options) (*Runner, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	r := &Runner{
		cfg:      cfg,
		metrics:  metrics.New(),
		console:  voice.NewConsolePresenter(opts.Out, cfg.BotName),
		degraded: make(map[string]string),
		sources:  opts.Sources,
	}
	if r.sources == nil {
		r.sources = func(name string) (capture.Source, error) { return NewSource(cfg, name) }
	}

	stt := opts.Transcriber
	if stt == nil {
		var err error
		if stt, err = NewTranscriber(cfg); err != nil {
			return nil, err
		}
	}
	chat := opts.Chat
	if chat == nil {
		var err error
		if chat, err = NewChat(cfg); err != nil {
			return nil, err
		}
	}
	synth := opts.Synthesizer
	if synth == nil {
		synth = NewSynthesizer(cfg)
	}

	ring, err := audio.NewRingBuffer(cfg.PrewakeBufferSeconds, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}
	seg, err := audio.NewSegmenter(audio.SegmenterConfig{
		SampleRate:     cfg.SampleRate,
		FrameMs:        cfg.VADFrameMs,
		PaddingMs:      cfg.VADPaddingMs,
		Aggressiveness: cfg.VADAggressiveness,
		MaxUtteranceMs: int(cfg.MaxUtteranceSeconds * 1000),
	}, nil)
	if err != nil {
		return nil, err
	}
	matcher, err := wake.NewMatcher(cfg.BotName, cfg.WakeAlternates...)
	if err != nil {
		return nil, err
	}

	presenters := voice.MultiPresenter{r.console}
	if cfg.Control.Enabled {
		r.hub = control.NewHub(r)
		presenters = append(presenters, r.hub)
		r.server = control.NewServer(cfg.Control.ListenAddr, r.hub, control.NewMCPServer(r, opts.Version), r.metrics.Handler())
	}

	r.pipeline, err = voice.NewPipeline(voice.PipelineConfig{
		SampleRate:     cfg.SampleRate,
		Channels:       cfg.Channels,
		QueueSize:      cfg.QueueSize,
		PrewakeSeconds: cfg.PrewakeBufferSeconds,
		ContextEntries: cfg.ContextEntries,
		LatencyTarget:  cfg.LatencyTarget(),
		DefaultMode:    cfg.Mode(),
	}, voice.Deps{
		Ring:        ring,
		Segmenter:   seg,
		Matcher:     matcher,
		History:     voice.NewTranscriptHistory(cfg.HistorySize),
		Transcriber: stt,
		Responder:   NewResponder(cfg, chat),
		Synthesizer: synth,
		Presenter:   presenters,
		Metrics:     r.metrics,
		SessionLog:  voice.NewSessionLog(cfg.SessionLogDir()),
	})
	if err != nil {
		return nil, err
	}
	r.presenter = presenters
	return r, nil
}

// Pipeline exposes the running pipeline.
func (r *Runner) Pipeline() *voice.Pipeline { return r.pipeline }

// Run starts the pipeline, the configured capture source and the control
// server, and blocks until ctx is done or Quit is called.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.pipeline.Start(ctx); err != nil {
		return err
	}
	defer r.pipeline.Close()

	r.mu.Lock()
	r.runCtx = ctx
	r.mu.Unlock()
	if err := r.startSource(ctx, r.cfg.AudioSource); err != nil {
		if r.server == nil {
			return fmt.Errorf("start %s capture: %w", r.cfg.AudioSource, err)
		}
		// keep serving so a control client can switch to a working source
		r.markDegraded(r.cfg.AudioSource, fmt.Sprintf("%s audio unavailable (%v); switch source to continue", r.cfg.AudioSource, err))
	}
	defer r.stopSource()

	logging.Infow("copilot running", "bot_name", r.cfg.BotName, "source", r.cfg.AudioSource, "mode", r.pipeline.Mode().String(), "control", r.cfg.Control.Enabled)

	g, gctx := errgroup.WithContext(ctx)
	if r.server != nil {
		g.Go(func() error { return r.server.Run(gctx) })
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-r.pipeline.Done():
			logging.Infow("quit requested")
		}
		cancel()
		return nil
	})
	err := g.Wait()
	if r.hub != nil {
		r.hub.Close()
	}
	return err
}

func (r *Runner) startSource(ctx context.Context, name string) error {
	src, err := r.sources(name)
	if err != nil {
		return err
	}
	if err := src.Start(ctx, r.pipeline); err != nil {
		r.metrics.RecordCaptureError(name)
		return err
	}
	r.mu.Lock()
	r.source, r.sourceName = src, name
	r.degraded = make(map[string]string)
	r.mu.Unlock()

	active := 1
	if multi, ok := src.(*capture.MultiSource); ok {
		failed := multi.Failures()
		active = multi.Active()
		names := make([]string, 0, len(failed))
		for n := range failed {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			r.metrics.RecordCaptureError(n)
			r.markDegraded(n, fmt.Sprintf("%s audio unavailable (%v); continuing with the remaining source", n, failed[n]))
		}
	}
	r.metrics.SetActiveSources(active)
	logging.Infow("audio source active", logging.SourceFields(src.Name(), r.cfg.SampleRate, r.cfg.Channels)...)
	return nil
}

func (r *Runner) markDegraded(source, msg string) {
	r.mu.Lock()
	r.degraded[source] = msg
	r.mu.Unlock()
	logging.Warnw("capture degraded", "source", source, "reason", msg)
	r.presenter.Warn(msg)
}

func (r *Runner) stopSource() {
	r.mu.Lock()
	src := r.source
	r.source, r.sourceName = nil, ""
	r.mu.Unlock()
	if src == nil {
		return
	}
	if err := src.Stop(); err != nil {
		logging.Warnw("capture stop failed", "source", src.Name(), "err", err)
	}
	r.metrics.SetActiveSources(0)
}

// SwitchSource replaces the active capture source. The segmenter is flushed
// between sources. When the new source fails the previous one is restarted.
func (r *Runner) SwitchSource(name string) error {
	r.switchMu.Lock()
	defer r.switchMu.Unlock()
	r.mu.Lock()
	ctx, prev := r.runCtx, r.sourceName
	r.mu.Unlock()
	if ctx == nil {
		return errors.New("copilot is not running")
	}
	if name == prev {
		return nil
	}
	if _, err := r.sources(name); err != nil {
		return err
	}
	r.stopSource()
	r.pipeline.EndOfStream()
	if err := r.startSource(ctx, name); err != nil {
		logging.Warnw("source switch failed; restoring previous source", "source", name, "previous", prev, "err", err)
		if prev == "" {
			r.markDegraded(name, fmt.Sprintf("no audio input: %v", err))
		} else if rerr := r.startSource(ctx, prev); rerr != nil {
			r.markDegraded(prev, fmt.Sprintf("no audio input: %v", rerr))
		}
		return fmt.Errorf("switch to %s: %w", name, err)
	}
	logging.Infow("capture source switched", "from", prev, "to", name)
	return nil
}

func (r *Runner) SetMuted(muted bool) { r.pipeline.SetMuted(muted) }

func (r *Runner) SetMode(m voice.Mode) error { return r.pipeline.SetMode(m) }

// Quit stops the pipeline, which ends Run.
func (r *Runner) Quit() { r.pipeline.Stop() }

func (r *Runner) Status() control.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := control.Status{
		Muted:    r.pipeline.Muted(),
		Mode:     r.pipeline.Mode().String(),
		Source:   r.sourceName,
		Pipeline: r.pipeline.Stats(),
	}
	for _, msg := range r.degraded {
		st.Degraded = append(st.Degraded, msg)
	}
	sort.Strings(st.Degraded)
	return st
}

func (r *Runner) RecentTranscripts(n int) []voice.Entry {
	return r.pipeline.History().Last(n)
}
