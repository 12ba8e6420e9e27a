package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/meeting-copilot/internal/audio"
	"github.com/meeting-copilot/internal/logging"
	"github.com/meeting-copilot/internal/metrics"
	"github.com/meeting-copilot/internal/wake"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("pipeline already started")

const (
	defaultQueueSize      = 200
	defaultContextEntries = 10
	defaultPollInterval   = 100 * time.Millisecond
	defaultShutdownGrace  = 5 * time.Second
	dropLogInterval       = 5 * time.Second
)

// PipelineConfig holds the tunables of the pipeline. Zero values select
// the defaults noted on each field.
type PipelineConfig struct {
	SampleRate int
	Channels   int
	// QueueSize bounds the ingress queue in chunks (200).
	QueueSize int
	// PrewakeSeconds of audio are snapshotted from the ring on a wake event.
	PrewakeSeconds float64
	// ContextEntries transcripts make up the response context (10).
	ContextEntries int
	// PollInterval paces queue depth reporting while idle (100ms).
	PollInterval time.Duration
	// ShutdownGrace bounds handling of the trailing utterance on Stop (5s).
	ShutdownGrace time.Duration
	// LatencyTarget from wake to response; slower responses are logged.
	LatencyTarget time.Duration
	DefaultMode   Mode
}

// Deps are the components the pipeline drives. Ring, Segmenter, Matcher,
// Transcriber and Responder are required.
type Deps struct {
	Ring        *audio.RingBuffer
	Segmenter   Segmenter
	Matcher     *wake.Matcher
	History     *TranscriptHistory
	Transcriber Transcriber
	Responder   Responder
	Synthesizer Synthesizer
	Presenter   Presenter
	Metrics     *metrics.Metrics
	SessionLog  *SessionLog
}

// Stats is a point-in-time view of the ingress counters.
type Stats struct {
	Enqueued   int64 `json:"enqueued"`
	Dropped    int64 `json:"dropped"`
	Muted      int64 `json:"muted_frames"`
	QueueDepth int   `json:"queue_depth"`
	Utterances int64 `json:"utterances"`
	Wakes      int64 `json:"wakes"`
}

// Pipeline moves capture audio through the ring buffer and segmenter, and
// each utterance through transcription, wake detection and response.
// OnAudioFrame never blocks; all segmentation happens on one consumer
// goroutine so utterances are handled strictly in arrival order.
type Pipeline struct {
	cfg PipelineConfig

	ring      *audio.RingBuffer
	seg       Segmenter
	matcher   *wake.Matcher
	history   *TranscriptHistory
	stt       Transcriber
	responder Responder
	synth     Synthesizer
	presenter Presenter
	metrics   *metrics.Metrics
	sessions  *SessionLog

	ingress chan item
	quit    chan struct{}

	stopOnce sync.Once
	started  atomic.Bool
	muted    atomic.Bool
	mode     atomic.Int32

	enqueueCount   atomic.Int64
	dropQueueCount atomic.Int64
	mutedCount     atomic.Int64
	utterCount     atomic.Int64
	wakeCount      atomic.Int64
	lastDropLog    atomic.Int64
	synthWarned    atomic.Bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	synthWG sync.WaitGroup
}

// NewPipeline validates deps and applies config defaults.
func NewPipeline(cfg PipelineConfig, deps Deps) (*Pipeline, error) {
	var errs []error
	if deps.Ring == nil {
		errs = append(errs, errors.New("ring buffer is required"))
	}
	if deps.Segmenter == nil {
		errs = append(errs, errors.New("segmenter is required"))
	}
	if deps.Matcher == nil {
		errs = append(errs, errors.New("wake matcher is required"))
	}
	if deps.Transcriber == nil {
		errs = append(errs, errors.New("transcriber is required"))
	}
	if deps.Responder == nil {
		errs = append(errs, errors.New("responder is required"))
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate=%d channels=%d", cfg.SampleRate, cfg.Channels))
	}
	if !cfg.DefaultMode.Valid() {
		errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownMode, cfg.DefaultMode))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("voice: new pipeline: %w", errors.Join(errs...))
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.ContextEntries <= 0 {
		cfg.ContextEntries = defaultContextEntries
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	if deps.History == nil {
		deps.History = NewTranscriptHistory(50)
	}
	if deps.Presenter == nil {
		deps.Presenter = noopPresenter{}
	}
	p := &Pipeline{
		cfg:       cfg,
		ring:      deps.Ring,
		seg:       deps.Segmenter,
		matcher:   deps.Matcher,
		history:   deps.History,
		stt:       deps.Transcriber,
		responder: deps.Responder,
		synth:     deps.Synthesizer,
		presenter: deps.Presenter,
		metrics:   deps.Metrics,
		sessions:  deps.SessionLog,
		ingress:   make(chan item, cfg.QueueSize),
		quit:      make(chan struct{}),
	}
	p.mode.Store(int32(cfg.DefaultMode))
	return p, nil
}

// OnAudioFrame is the capture callback. While muted the chunk is discarded.
// Otherwise it always lands in the ring buffer and is queued for
// segmentation unless the queue is full, in which case it is dropped.
func (p *Pipeline) OnAudioFrame(pcm []byte) {
	if p.muted.Load() {
		p.mutedCount.Add(1)
		p.metrics.RecordMuted()
		return
	}
	p.metrics.RecordFrame()
	p.ring.Append(pcm)
	select {
	case p.ingress <- item{pcm: append([]byte(nil), pcm...)}:
		p.enqueueCount.Add(1)
	default:
		p.dropQueueCount.Add(1)
		p.metrics.RecordDrop()
		p.logDrop()
	}
}

// logDrop warns about queue overflow at most once per dropLogInterval.
func (p *Pipeline) logDrop() {
	now := time.Now().UnixNano()
	last := p.lastDropLog.Load()
	if now-last < int64(dropLogInterval) || !p.lastDropLog.CompareAndSwap(last, now) {
		return
	}
	logging.Warnw("dropping audio chunk; ingress queue full", "dropped_total", p.dropQueueCount.Load(), "queue_size", p.cfg.QueueSize)
}

// item is one ingress entry: a chunk, or the end-of-stream marker.
type item struct {
	pcm []byte
	eos bool
}

// EndOfStream queues a marker behind every chunk already accepted. The
// segmenter is flushed when the consumer reaches it, so chunks that arrive
// later start a new utterance. Unlike OnAudioFrame it waits for queue space,
// bounded by the shutdown grace period.
func (p *Pipeline) EndOfStream() {
	marker := item{eos: true}
	select {
	case p.ingress <- marker:
		return
	default:
	}
	timer := time.NewTimer(p.cfg.ShutdownGrace)
	defer timer.Stop()
	select {
	case p.ingress <- marker:
	case <-p.quit:
	case <-timer.C:
		logging.Warnw("end of stream marker dropped; ingress queue full", "queue_size", p.cfg.QueueSize)
	}
}

// Start launches the consumer goroutine.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run()
	logging.Infow("pipeline started", "queue_size", p.cfg.QueueSize, "mode", p.Mode().String())
	return nil
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			p.finish()
			return
		case <-p.ctx.Done():
			p.finish()
			return
		case it := <-p.ingress:
			if it.eos {
				p.flushSegmenter(p.ctx)
				continue
			}
			p.processChunk(p.ctx, it.pcm)
		case <-ticker.C:
			p.metrics.SetQueueDepth(len(p.ingress))
		}
	}
}

func (p *Pipeline) processChunk(ctx context.Context, chunk []byte) {
	for _, pcm := range p.seg.Process(chunk) {
		p.handleUtterance(ctx, pcm)
	}
}

func (p *Pipeline) flushSegmenter(ctx context.Context) {
	if pcm := p.seg.Flush(); len(pcm) > 0 {
		p.handleUtterance(ctx, pcm)
	}
}

// finish handles a trailing utterance within the shutdown grace period.
func (p *Pipeline) finish() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), p.cfg.ShutdownGrace)
	defer cancel()
	p.flushSegmenter(ctx)
	logging.Infow("pipeline consumer stopped", "enqueued", p.enqueueCount.Load(), "dropped", p.dropQueueCount.Load())
}

func (p *Pipeline) handleUtterance(ctx context.Context, pcm []byte) {
	u := Utterance{
		ID:       uuid.NewString(),
		PCM:      pcm,
		Duration: audio.Duration(len(pcm), p.cfg.SampleRate, p.cfg.Channels),
	}
	ctx = logging.WithFields(ctx, "correlation_id", u.ID)
	defer func() {
		if r := recover(); r != nil {
			logging.Errorw("utterance handler panicked", "correlation_id", u.ID, "panic", r)
		}
	}()
	p.utterCount.Add(1)
	p.metrics.RecordUtterance(u.Duration)
	logging.DebugwCtx(ctx, "utterance segmented", "bytes", len(pcm), "duration_ms", u.Duration.Milliseconds())

	start := time.Now()
	tr, err := p.stt.Transcribe(ctx, u.PCM, p.cfg.SampleRate, p.cfg.Channels)
	p.metrics.RecordTranscription(time.Since(start), err)
	if err != nil {
		logging.WarnwCtx(ctx, "transcription failed; skipping utterance", "err", err)
		return
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		p.metrics.RecordEmptyTranscript()
		logging.DebugwCtx(ctx, "empty transcript")
		return
	}
	isWake := p.matcher.IsWake(text)
	p.history.Append(Entry{Text: text, Confidence: tr.Confidence, Wake: isWake, At: time.Now()})
	logging.InfowCtx(ctx, "transcript", "text", text, "confidence", tr.Confidence, "wake", isWake)
	p.presenter.AddTranscript(text, isWake)
	if isWake {
		p.handleWake(ctx, u, text)
	}
}

func (p *Pipeline) handleWake(ctx context.Context, u Utterance, text string) {
	wakeAt := time.Now()
	p.wakeCount.Add(1)
	p.metrics.RecordWake()
	prewake := p.ring.LastSeconds(p.cfg.PrewakeSeconds)
	convo := p.history.Context(p.cfg.ContextEntries)
	mode := p.Mode()
	instruction, _ := p.matcher.ExtractCommand(text)
	logging.InfowCtx(ctx, "wake phrase detected", "mode", mode.String(), "prewake_bytes", len(prewake), "command", instruction)

	response := p.responder.Respond(ctx, Request{Mode: mode, Context: convo, Instruction: instruction})
	latency := time.Since(wakeAt)
	p.metrics.RecordResponse(latency)
	if p.cfg.LatencyTarget > 0 && latency > p.cfg.LatencyTarget {
		logging.WarnwCtx(ctx, "response slower than latency target", "latency_ms", latency.Milliseconds(), "target_ms", p.cfg.LatencyTarget.Milliseconds())
	}
	p.presenter.SetResponse(response)

	if p.sessions != nil {
		rec := WakeRecord{
			CorrelationID:  u.ID,
			Transcript:     text,
			Command:        instruction,
			Mode:           mode.String(),
			Context:        convo,
			Response:       response,
			PrewakeSeconds: audio.Duration(len(prewake), p.cfg.SampleRate, p.cfg.Channels).Seconds(),
			LatencyMs:      latency.Milliseconds(),
			At:             wakeAt.UTC(),
		}
		if err := p.sessions.Record(rec); err != nil {
			logging.WarnwCtx(ctx, "session log write failed", "err", err)
		}
	}
	p.speak(u.ID, response)
}

// speak dispatches synthesis on its own goroutine; the consumer never waits.
func (p *Pipeline) speak(correlationID, text string) {
	if p.synth == nil || strings.TrimSpace(text) == "" {
		return
	}
	p.synthWG.Add(1)
	go func() {
		defer p.synthWG.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Errorw("synthesis panicked", "correlation_id", correlationID, "panic", r)
			}
		}()
		err := p.synth.Speak(p.ctx, text)
		p.metrics.RecordSynthesis(err)
		if p.sessions != nil {
			if merr := p.sessions.MergeUpdates(correlationID, map[string]interface{}{
				"tts_ok":            err == nil,
				"tts_completed_utc": time.Now().UTC().Format(time.RFC3339Nano),
			}); merr != nil {
				logging.Warnw("session log update failed", "correlation_id", correlationID, "err", merr)
			}
		}
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.Warnw("speech synthesis failed", "correlation_id", correlationID, "err", err)
		if p.synthWarned.CompareAndSwap(false, true) {
			p.presenter.Warn("Speech output unavailable; responses are shown as text only.")
		}
	}()
}

// SetMuted gates OnAudioFrame. Unmuting affects subsequent frames only.
func (p *Pipeline) SetMuted(muted bool) {
	if p.muted.Swap(muted) != muted {
		logging.Infow("mute changed", "muted", muted)
	}
}

func (p *Pipeline) Muted() bool { return p.muted.Load() }

// SetMode changes the response mode used for the next wake event.
func (p *Pipeline) SetMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownMode, m)
	}
	if Mode(p.mode.Swap(int32(m))) != m {
		logging.Infow("mode changed", "mode", m.String())
	}
	return nil
}

func (p *Pipeline) Mode() Mode { return Mode(p.mode.Load()) }

// History exposes the transcript history for read access.
func (p *Pipeline) History() *TranscriptHistory { return p.history }

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Enqueued:   p.enqueueCount.Load(),
		Dropped:    p.dropQueueCount.Load(),
		Muted:      p.mutedCount.Load(),
		QueueDepth: len(p.ingress),
		Utterances: p.utterCount.Load(),
		Wakes:      p.wakeCount.Load(),
	}
}

// Stop asks the consumer to exit after its current iteration. It is safe to
// call more than once and from any goroutine.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
}

// Done is closed once Stop has been called.
func (p *Pipeline) Done() <-chan struct{} { return p.quit }

// Close stops the consumer, waits for it, then cancels and waits for any
// synthesis still running.
func (p *Pipeline) Close() error {
	p.Stop()
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.synthWG.Wait()
	return nil
}
