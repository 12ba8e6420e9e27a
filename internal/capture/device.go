package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/meeting-copilot/internal/logging"
)

// DeviceSource captures from the default microphone or, where the backend
// supports it, the system output loopback.
type DeviceSource struct {
	name   string
	kind   malgo.DeviceType
	format Format

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	sink    Sink
	running atomic.Bool
	pending []byte
	frames  atomic.Int64
}

// NewMicrophone captures the default input device.
func NewMicrophone(f Format) *DeviceSource {
	return &DeviceSource{name: "microphone", kind: malgo.Capture, format: f}
}

// NewLoopback captures what the system is playing. Only WASAPI supports
// loopback; other backends fail at Start.
func NewLoopback(f Format) *DeviceSource {
	return &DeviceSource{name: "system", kind: malgo.Loopback, format: f}
}

func (d *DeviceSource) Name() string { return d.name }

func (d *DeviceSource) Start(ctx context.Context, sink Sink) error {
	if err := d.format.validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device != nil {
		return ErrAlreadyStarted
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		logging.Debugw("miniaudio", "source", d.name, "msg", msg)
	})
	if err != nil {
		return fmt.Errorf("%s: init audio context: %w", d.name, err)
	}

	cfg := malgo.DefaultDeviceConfig(d.kind)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(d.format.Channels)
	cfg.SampleRate = uint32(d.format.SampleRate)
	cfg.PeriodSizeInFrames = uint32(d.format.ChunkFrames)
	cfg.Alsa.NoMMap = 1

	chunk := d.format.chunkBytes()
	onRecv := func(_, in []byte, frameCount uint32) {
		if frameCount == 0 || !d.running.Load() {
			return
		}
		d.frames.Add(int64(frameCount))
		// miniaudio reuses the buffer; everything handed out is a copy
		d.pending = append(d.pending, in...)
		for len(d.pending) >= chunk {
			out := make([]byte, chunk)
			copy(out, d.pending[:chunk])
			d.pending = append(d.pending[:0], d.pending[chunk:]...)
			sink.OnAudioFrame(out)
		}
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%s: init device: %w", d.name, err)
	}
	d.running.Store(true)
	if err := device.Start(); err != nil {
		d.running.Store(false)
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%s: start device: %w", d.name, err)
	}
	d.mctx, d.device, d.sink = mctx, device, sink
	logging.Infow("capture started", logging.SourceFields(d.name, d.format.SampleRate, d.format.Channels)...)
	return nil
}

// Stop closes the device and ends the stream on the sink it was started with.
func (d *DeviceSource) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return nil
	}
	d.running.Store(false)
	err := d.device.Stop()
	d.device.Uninit()
	_ = d.mctx.Uninit()
	d.mctx.Free()
	sink := d.sink
	d.device, d.mctx, d.sink, d.pending = nil, nil, nil, nil
	logging.Infow("capture stopped", "source", d.name, "frames", d.frames.Load())
	sink.EndOfStream()
	if err != nil {
		return fmt.Errorf("%s: stop device: %w", d.name, err)
	}
	return nil
}

// DeviceInfo describes one capture device.
type DeviceInfo struct {
	Name    string
	Default bool
}

// ListDevices enumerates capture devices on the default backend.
func ListDevices() ([]DeviceInfo, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	out := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, DeviceInfo{Name: info.Name(), Default: info.IsDefault != 0})
	}
	return out, nil
}
