package audio

import (
	"math"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"
)

// mixRate is the sample rate the shared speaker runs at; every decoded
// stream is resampled onto it.
const mixRate = beep.SampleRate(44100)

var speakerOnce sync.Once

func initSpeaker() error {
	var err error
	speakerOnce.Do(func() {
		err = speaker.Init(mixRate, mixRate.N(100*time.Millisecond))
	})
	return err
}

// BeepEngine opens mp3 files onto the shared speaker.
type BeepEngine struct{}

// NewBeepEngine initializes the speaker and returns the engine.
func NewBeepEngine() (*BeepEngine, error) {
	if err := initSpeaker(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize speaker")
	}
	return &BeepEngine{}, nil
}

// Open decodes the file at path into a playable handle. The file stays open
// until the handle is closed.
func (e *BeepEngine) Open(path string) (Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to open %s", path), ErrOpenFailed)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, errors.Mark(errors.Wrapf(err, "failed to decode %s", path), ErrOpenFailed)
	}

	h := &beepHandle{
		path:     path,
		streamer: streamer,
		format:   format,
	}
	h.ctrl = &beep.Ctrl{
		Streamer: beep.Resample(4, format.SampleRate, mixRate, streamer),
		Paused:   true,
	}
	h.volume = &effects.Volume{
		Streamer: h.ctrl,
		Base:     2,
		Volume:   0,
	}
	return h, nil
}

// beepHandle is one decoded stream playing through the shared speaker.
type beepHandle struct {
	path     string
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume

	mu     sync.Mutex
	added  bool // chain handed to the speaker
	closed bool
}

func (h *beepHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.Mark(errors.Newf("cannot play %s", h.path), ErrHandleClosed)
	}

	speaker.Lock()
	// A drained stream must be rewound before it can produce audio again.
	if h.added && h.streamer.Position() >= h.streamer.Len() {
		if err := h.streamer.Seek(0); err != nil {
			speaker.Unlock()
			return errors.Wrapf(err, "failed to rewind %s", h.path)
		}
	}
	h.ctrl.Paused = false
	speaker.Unlock()

	if !h.added {
		speaker.Play(h.volume)
		h.added = true
	}
	return nil
}

func (h *beepHandle) Pause() {
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

func (h *beepHandle) Stop() {
	speaker.Lock()
	h.ctrl.Paused = true
	if err := h.streamer.Seek(0); err != nil {
		zlog.Warn().Msgf("audio: failed to rewind %s: %v", h.path, err)
	}
	speaker.Unlock()
}

func (h *beepHandle) Seek(pos time.Duration) error {
	speaker.Lock()
	defer speaker.Unlock()

	sample := h.format.SampleRate.N(pos)
	if sample > h.streamer.Len() {
		sample = h.streamer.Len()
	}
	if sample < 0 {
		sample = 0
	}
	return errors.Wrapf(h.streamer.Seek(sample), "failed to seek %s", h.path)
}

func (h *beepHandle) Position() time.Duration {
	speaker.Lock()
	defer speaker.Unlock()
	return h.format.SampleRate.D(h.streamer.Position())
}

func (h *beepHandle) Duration() time.Duration {
	speaker.Lock()
	defer speaker.Unlock()
	return h.format.SampleRate.D(h.streamer.Len())
}

func (h *beepHandle) Playing() bool {
	speaker.Lock()
	defer speaker.Unlock()
	return !h.ctrl.Paused && h.streamer.Position() < h.streamer.Len()
}

func (h *beepHandle) SetVolume(v float64) {
	speaker.Lock()
	defer speaker.Unlock()

	if v <= 0 {
		h.volume.Silent = true
		return
	}
	if v > 1 {
		v = 1
	}
	h.volume.Silent = false
	h.volume.Volume = math.Log2(v)
}

func (h *beepHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()

	return errors.Wrapf(h.streamer.Close(), "failed to close %s", h.path)
}
