package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultPollInterval = 100 * time.Millisecond

// CaptureConfig controls one Capture.
type CaptureConfig struct {
	Format              Format
	PollInterval        time.Duration
	MaxRecordingSeconds int
}

// Capture records from a Device on a background worker between Start and Stop.
type Capture struct {
	device Device
	cfg    CaptureConfig
	logger *zap.Logger

	mu        sync.Mutex
	recording bool
	stopFlag  *atomic.Bool
	stopCh    chan struct{}
	done      chan struct{}
	queue     *frameQueue
}

// NewCapture builds a capture over device.
func NewCapture(device Device, cfg CaptureConfig, logger *zap.Logger) *Capture {
	if device == nil {
		device = NoDevice{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Format.SampleRate <= 0 {
		cfg.Format.SampleRate = 16000
	}
	if cfg.Format.Channels <= 0 {
		cfg.Format.Channels = 1
	}
	if cfg.Format.FramesPerChunk <= 0 {
		cfg.Format.FramesPerChunk = 1024
	}
	return &Capture{device: device, cfg: cfg, logger: logger}
}

// Format returns the capture layout.
func (c *Capture) Format() Format {
	return c.cfg.Format
}

// Recording reports whether a worker is active.
func (c *Capture) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Start launches the capture worker. It returns false if a recording was already running.
func (c *Capture) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		c.logger.Info("capture already recording")
		return false
	}

	flag := &atomic.Bool{}
	flag.Store(true)
	c.recording = true
	c.stopFlag = flag
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.queue = &frameQueue{}

	go c.run(flag, c.stopCh, c.done, c.queue)
	c.logger.Info("capture started",
		zap.Int("sample_rate", c.cfg.Format.SampleRate),
		zap.Int("channels", c.cfg.Format.Channels),
	)
	return true
}

// Stop ends the recording and returns everything captured. ok is false when
// nothing was captured, including Stop without a running recording.
func (c *Capture) Stop() (Buffer, bool) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return Buffer{}, false
	}
	c.recording = false
	c.stopFlag.Store(false)
	close(c.stopCh)
	done := c.done
	queue := c.queue
	c.stopFlag, c.stopCh, c.done, c.queue = nil, nil, nil, nil
	c.mu.Unlock()

	<-done

	samples := queue.drain()
	if len(samples) == 0 {
		c.logger.Info("capture stopped without audio")
		return Buffer{}, false
	}
	buf := Buffer{
		Samples:    samples,
		SampleRate: c.cfg.Format.SampleRate,
		Channels:   c.cfg.Format.Channels,
	}
	c.logger.Info("capture stopped", zap.Duration("duration", buf.Duration()))
	return buf, true
}

func (c *Capture) run(flag *atomic.Bool, stopCh <-chan struct{}, done chan<- struct{}, queue *frameQueue) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("capture worker panic", zap.String("panic", fmt.Sprint(r)))
		}
	}()

	stream, err := c.device.Open(c.cfg.Format)
	if err != nil {
		c.logger.Error("capture device open failed", zap.Error(err))
		<-stopCh
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			c.logger.Warn("capture device close failed", zap.Error(err))
		}
	}()

	maxSamples := c.maxSamples()
	capped := false
	keep := func(frame []float32) {
		if len(frame) == 0 {
			return
		}
		if maxSamples > 0 {
			room := maxSamples - queue.len()
			if room <= 0 {
				if !capped {
					capped = true
					c.logger.Warn("capture reached max recording length, dropping frames",
						zap.Int("max_recording_seconds", c.cfg.MaxRecordingSeconds),
					)
				}
				return
			}
			if len(frame) > room {
				frame = frame[:room]
			}
		}
		owned := make([]float32, len(frame))
		copy(owned, frame)
		queue.push(owned)
	}

	for flag.Load() {
		frame, err := stream.Read(c.cfg.PollInterval)
		if err != nil {
			c.logger.Warn("capture frame read failed", zap.Error(err))
			select {
			case <-stopCh:
				return
			case <-time.After(c.cfg.PollInterval):
			}
			continue
		}
		keep(frame)
	}

	if buffered, ok := stream.(bufferedStream); ok {
		for _, frame := range buffered.Drain() {
			keep(frame)
		}
	}
}

func (c *Capture) maxSamples() int {
	if c.cfg.MaxRecordingSeconds <= 0 {
		return 0
	}
	return c.cfg.MaxRecordingSeconds * c.cfg.Format.SampleRate * c.cfg.Format.Channels
}
