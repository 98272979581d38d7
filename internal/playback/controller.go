// Package playback owns the lifecycle of single-use audio handles over one
// loaded buffer: play, pause, resume, seek, stop and completion.
package playback

import (
	"errors"
	"log"
	"math"
	"time"

	"github.com/satindergrewal/harmonia/internal/audio"
	"github.com/satindergrewal/harmonia/internal/engine"
)

// Config holds the controller's timing constants.
type Config struct {
	InitialGain  float64       // gain for the first moments of a new track
	RampDuration time.Duration // InitialGain -> 1.0 once results are shown
	SeekFlush    time.Duration // gap between stopping the old handle and starting the new one
	PollInterval time.Duration // display position sampling
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		InitialGain:  0.1,
		RampDuration: 2500 * time.Millisecond,
		SeekFlush:    50 * time.Millisecond,
		PollInterval: 100 * time.Millisecond,
	}
}

// Controller drives the audio device. All methods must run on the event loop.
type Controller struct {
	loop   *engine.Loop
	dev    *audio.Device
	timing *engine.TimingState
	cfg    Config

	buffer  *audio.Buffer
	handle  *audio.Handle
	gen     uint64
	restart *engine.Task
	poll    *engine.Task
}

// New creates a controller writing playback fields of timing.
func New(loop *engine.Loop, dev *audio.Device, timing *engine.TimingState, cfg Config) *Controller {
	return &Controller{loop: loop, dev: dev, timing: timing, cfg: cfg}
}

// Load replaces the buffer, stopping whatever was playing.
func (c *Controller) Load(buf *audio.Buffer) {
	c.Stop()
	c.buffer = buf
	c.timing.Duration = buf.Duration()
}

// Unload stops playback and drops the buffer.
func (c *Controller) Unload() {
	c.Stop()
	c.buffer = nil
	c.timing.Duration = 0
}

// Loaded reports whether a buffer is loaded.
func (c *Controller) Loaded() bool { return c.buffer != nil }

// Playing reports whether audio is playing or about to restart after a seek.
func (c *Controller) Playing() bool {
	return c.timing.Playing || c.restart.Pending()
}

// Seeking reports whether a seek restart is pending.
func (c *Controller) Seeking() bool { return c.restart.Pending() }

// Now is the audio clock.
func (c *Controller) Now() float64 { return c.dev.Now() }

// Position is the authoritative playback position in seconds.
func (c *Controller) Position() float64 {
	return c.timing.Position(c.dev.Now())
}

// Play starts the loaded buffer from the beginning at the initial low gain.
// It does nothing when already playing or nothing is loaded.
func (c *Controller) Play() {
	if c.buffer == nil || c.Playing() {
		return
	}
	c.dev.SetGain(c.cfg.InitialGain)
	c.start(0)
}

// RampUp raises the gain from the initial level to full.
func (c *Controller) RampUp() {
	c.dev.RampGain(c.cfg.InitialGain, 1.0, c.cfg.RampDuration)
}

// Pause records the current position and stops the handle. Pausing during a
// seek gap cancels the pending restart and keeps the seek target.
func (c *Controller) Pause() {
	if c.restart.Pending() {
		c.restart.Cancel()
		c.restart = nil
		return
	}
	if !c.timing.Playing {
		return
	}
	offset := c.Position()
	c.halt()
	c.timing.PausedAtOffset = offset
	c.timing.CurrentTime = offset
}

// Resume continues from the paused offset, or from the top if the track had
// played out.
func (c *Controller) Resume() {
	if c.buffer == nil || c.Playing() {
		return
	}
	offset := c.timing.PausedAtOffset
	if offset >= c.timing.Duration {
		offset = 0
	}
	c.start(offset)
}

// Toggle pauses when playing and resumes otherwise.
func (c *Controller) Toggle() {
	if c.Playing() {
		c.Pause()
		return
	}
	c.Resume()
}

// Seek moves to t seconds, clamped to the track. While playing, the old
// handle stops now and a new one starts after the flush gap; a later seek
// inside the gap replaces the pending one.
func (c *Controller) Seek(t float64) {
	if c.buffer == nil {
		return
	}
	target := math.Max(0, math.Min(t, c.timing.Duration))

	if c.Playing() {
		c.halt()
		c.restart.Cancel()
		c.restart = c.loop.After(c.cfg.SeekFlush, func() {
			c.restart = nil
			c.start(target)
		})
	}
	c.timing.PausedAtOffset = target
	c.timing.CurrentTime = target
}

// SeekRelative seeks by delta seconds from the current position.
func (c *Controller) SeekRelative(delta float64) {
	c.Seek(c.Position() + delta)
}

// Stop halts playback and rewinds to 0. Any pending seek restart is
// cancelled.
func (c *Controller) Stop() {
	c.restart.Cancel()
	c.restart = nil
	c.halt()
	c.timing.PlaybackStartTime = 0
	c.timing.PausedAtOffset = 0
	c.timing.CurrentTime = 0
}

func (c *Controller) start(offset float64) {
	c.gen++
	gen := c.gen
	h := c.dev.NewHandle(c.buffer, func() {
		c.loop.Post(func() { c.ended(gen) })
	})
	at, err := h.Start(offset)
	if err != nil {
		log.Printf("WARN playback: start at %.2fs: %v", offset, err)
		return
	}
	c.handle = h
	c.timing.Playing = true
	c.timing.PlaybackStartTime = at - offset
	c.timing.PausedAtOffset = offset
	c.timing.CurrentTime = offset

	c.poll.Cancel()
	c.poll = c.loop.Every(c.cfg.PollInterval, c.sample)
}

// halt invalidates the current handle's completion and stops it.
func (c *Controller) halt() {
	c.gen++
	if c.handle != nil {
		// A handle that just played out is already stopped.
		if err := c.handle.Stop(); err != nil && !errors.Is(err, audio.ErrHandleStopped) {
			log.Printf("WARN playback: stop: %v", err)
		}
		c.handle = nil
	}
	c.timing.Playing = false
	c.poll.Cancel()
	c.poll = nil
}

// ended handles natural completion. Callbacks from handles that were since
// stopped or replaced carry an old generation and are ignored.
func (c *Controller) ended(gen uint64) {
	if gen != c.gen || c.handle == nil {
		return
	}
	c.handle = nil
	c.timing.Playing = false
	c.timing.PausedAtOffset = c.timing.Duration
	c.timing.CurrentTime = c.timing.Duration
	c.poll.Cancel()
	c.poll = nil
}

func (c *Controller) sample() {
	if !c.timing.Playing {
		return
	}
	c.timing.CurrentTime = math.Min(c.dev.Now()-c.timing.PlaybackStartTime, c.timing.Duration)
}
