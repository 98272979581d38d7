package audio

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

var (
	// ErrHandleStopped is returned when stopping a handle twice, or one that
	// never started.
	ErrHandleStopped = errors.New("audio: handle not playing")
	// ErrHandleUsed is returned when starting a handle a second time.
	ErrHandleUsed = errors.New("audio: handle already started")
)

// Device is the output node of the audio graph: a mixer of handles behind a
// master gain. Whatever pulls samples out of it (the stream pump or the
// local speaker) also drives its clock.
type Device struct {
	mu       sync.Mutex
	mixer    beep.Mixer
	gain     *Gain
	rendered int64
	live     int
}

// NewDevice creates a silent device at unity gain.
func NewDevice() *Device {
	d := &Device{}
	d.gain = NewGain(&d.mixer)
	return d
}

// Now is the audio clock in seconds: how much has been rendered so far.
func (d *Device) Now() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return float64(d.rendered) / SampleRate
}

// Live is the number of handles started and not yet stopped or finished.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// SetGain sets the master gain immediately.
func (d *Device) SetGain(v float64) {
	d.mu.Lock()
	d.gain.SetValue(v)
	d.mu.Unlock()
}

// RampGain sets the master gain to from, then ramps linearly to to over dur
// of rendered audio.
func (d *Device) RampGain(from, to float64, dur time.Duration) {
	d.mu.Lock()
	d.gain.SetValue(from)
	d.gain.LinearRampTo(to, Format.SampleRate.N(dur))
	d.mu.Unlock()
}

// Gain returns the current master gain.
func (d *Device) Gain() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gain.Value()
}

// Stream renders the mix. It never runs dry; gaps are silence.
func (d *Device) Stream(samples [][2]float64) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, _ := d.gain.Stream(samples)
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	d.rendered += int64(len(samples))
	return len(samples), true
}

func (d *Device) Err() error { return nil }

// Render pulls n sample frames, advancing the audio clock.
func (d *Device) Render(n int) [][2]float64 {
	buf := make([][2]float64, n)
	d.Stream(buf)
	return buf
}

// Handle is a single-use playback source over a Buffer. Once stopped or
// finished it cannot be restarted; create a new one.
type Handle struct {
	dev     *Device
	buf     *Buffer
	onEnded func()

	ctrl    *beep.Ctrl
	started bool
	stopped bool
}

// NewHandle creates an unstarted handle. onEnded runs exactly once, when the
// buffer plays out or Stop is called, on the goroutine that caused it
// (the audio thread for natural completion), so it must not block or call
// back into the device.
func (d *Device) NewHandle(buf *Buffer, onEnded func()) *Handle {
	return &Handle{dev: d, buf: buf, onEnded: onEnded}
}

// Start begins playback at offset seconds into the buffer and returns the
// audio-clock time at which the offset sample will be heard.
func (h *Handle) Start(offset float64) (float64, error) {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	if h.started {
		return 0, ErrHandleUsed
	}
	h.started = true

	from := int(math.Round(offset * SampleRate))
	from = max(0, min(from, h.buf.Len()))
	h.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(h.buf.buf.Streamer(from, h.buf.Len()), beep.Callback(h.finished)),
	}
	h.dev.mixer.Add(h.ctrl)
	h.dev.live++
	return float64(h.dev.rendered) / SampleRate, nil
}

// finished runs inside Device.Stream with the lock held.
func (h *Handle) finished() {
	if h.stopped {
		return
	}
	h.stopped = true
	h.dev.live--
	if h.onEnded != nil {
		h.onEnded()
	}
}

// Stop silences the handle. Its completion callback fires as if it had
// played out.
func (h *Handle) Stop() error {
	h.dev.mu.Lock()
	if !h.started || h.stopped {
		h.dev.mu.Unlock()
		return ErrHandleStopped
	}
	h.stopped = true
	h.ctrl.Streamer = nil
	h.dev.live--
	h.dev.mu.Unlock()

	if h.onEnded != nil {
		h.onEnded()
	}
	return nil
}
