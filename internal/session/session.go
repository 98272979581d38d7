// Package session runs the upload lifecycle: decode, auto-play, analysis and
// reset. It owns the app state and feeds the choreographer.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"mime"
	"time"

	"github.com/google/uuid"

	"github.com/satindergrewal/harmonia/internal/analysis"
	"github.com/satindergrewal/harmonia/internal/audio"
	"github.com/satindergrewal/harmonia/internal/choreo"
	"github.com/satindergrewal/harmonia/internal/engine"
	"github.com/satindergrewal/harmonia/internal/playback"
)

// ErrUnsupportedMedia is matched by uploads that are not MP3.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// MediaError rejects an upload by content type.
type MediaError struct {
	MIME string
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("unsupported media type %q, only audio/mpeg is accepted", e.MIME)
}

func (e *MediaError) Is(target error) bool { return target == ErrUnsupportedMedia }

// ErrNothingLoaded is returned for transport commands before a decode.
var ErrNothingLoaded = errors.New("no track loaded")

// Describer writes a one-line caption for an analysed track. Implementations
// must return quickly once ctx is done.
type Describer interface {
	Describe(ctx context.Context, rec *analysis.FeatureRecord) string
}

// Options wires the session's collaborators. Zero fields get defaults.
type Options struct {
	Analyzer  analysis.Analyzer
	Describer Describer // optional

	Decode func(data []byte) (*audio.Buffer, error)
	Jitter func() float64 // in [-1, 1], scatters the planet's depth

	RampDelay       time.Duration // results shown -> gain ramp starts
	AnalysisTimeout time.Duration
}

func (o *Options) defaults() {
	if o.Decode == nil {
		o.Decode = func(data []byte) (*audio.Buffer, error) {
			return audio.Decode(bytes.NewReader(data))
		}
	}
	if o.Jitter == nil {
		o.Jitter = func() float64 { return rand.Float64()*2 - 1 }
	}
	if o.RampDelay <= 0 {
		o.RampDelay = 50 * time.Millisecond
	}
}

// Session methods must run on the event loop.
type Session struct {
	loop   *engine.Loop
	ctrl   *playback.Controller
	choreo *choreo.Choreographer
	timing *engine.TimingState
	opts   Options

	state       engine.AppState
	errMsg      string
	unavailable error
	uploadID    string
	fileName    string
	waveform    []float64
	caption     string
	abort       context.CancelFunc
}

// New creates an idle session.
func New(loop *engine.Loop, ctrl *playback.Controller, ch *choreo.Choreographer, timing *engine.TimingState, opts Options) *Session {
	opts.defaults()
	return &Session{
		loop:   loop,
		ctrl:   ctrl,
		choreo: ch,
		timing: timing,
		opts:   opts,
		state:  engine.AppIdle,
	}
}

// State is the current app state.
func (s *Session) State() engine.AppState { return s.state }

// Err is the message of the last failure, or "".
func (s *Session) Err() string { return s.errMsg }

// Waveform is the thumbnail of the loaded track, nil before decode finishes.
func (s *Session) Waveform() []float64 { return s.waveform }

// Upload starts a new track: the previous one is stopped and any in-flight
// decode or analysis is abandoned. It returns the upload id; decode and
// analysis finish asynchronously.
func (s *Session) Upload(name, contentType string, data []byte) (string, error) {
	if s.unavailable != nil {
		return "", s.unavailable
	}
	if !isMP3(contentType) {
		return "", &MediaError{MIME: contentType}
	}

	s.cancelWork()
	s.ctrl.Unload()
	s.errMsg = ""
	s.caption = ""
	s.waveform = nil
	s.fileName = name
	s.timing.Features = nil
	s.uploadID = uuid.NewString()
	s.setState(engine.AppAnalyzing)

	ctx, cancel := context.WithCancel(context.Background())
	s.abort = cancel
	id := s.uploadID

	log.Printf("Upload %s: %s (%d bytes)", id[:8], name, len(data))
	go func() {
		buf, err := s.opts.Decode(data)
		var wf []float64
		if err == nil {
			wf = audio.Waveform(buf, audio.WaveformPoints)
		}
		s.loop.Post(func() { s.decoded(ctx, id, data, buf, wf, err) })
	}()
	return id, nil
}

func (s *Session) decoded(ctx context.Context, id string, data []byte, buf *audio.Buffer, wf []float64, err error) {
	if id != s.uploadID {
		return
	}
	if err != nil {
		log.Printf("Decode failed %s: %v", s.fileName, err)
		s.fail(fmt.Sprintf("Could not decode %s: %v. Make sure it is a valid MP3.", s.fileName, err))
		return
	}

	s.waveform = wf
	s.ctrl.Load(buf)
	s.ctrl.Play()

	if s.opts.Analyzer == nil {
		s.fail("Analysis service is not configured.")
		return
	}
	go func() {
		actx := ctx
		if s.opts.AnalysisTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, s.opts.AnalysisTimeout)
			defer cancel()
		}
		res, err := s.opts.Analyzer.Analyze(actx, data)
		s.loop.Post(func() { s.analyzed(ctx, id, res, err) })
	}()
}

func (s *Session) analyzed(ctx context.Context, id string, res analysis.Result, err error) {
	if id != s.uploadID {
		return
	}
	if err != nil {
		log.Printf("Analysis failed %s: %v", s.fileName, err)
		s.fail(fmt.Sprintf("Analysis failed: %v. Please try again.", err))
		return
	}

	rec := analysis.NewFeatureRecord(res, s.fileName, s.opts.Jitter())
	log.Printf("Analysed %s", rec)
	s.timing.Features = rec
	s.setState(engine.AppResultsShown)
	s.scheduleRamp(id)
	s.caption = analysis.Caption(rec.Mood)

	if s.opts.Describer != nil {
		go func() {
			c := s.opts.Describer.Describe(ctx, rec)
			if c == "" {
				return
			}
			s.loop.Post(func() {
				if id == s.uploadID {
					s.caption = c
				}
			})
		}()
	}
}

// fail returns to upload-ready with a message. Audio that already started
// keeps playing.
func (s *Session) fail(msg string) {
	s.cancelWork()
	s.errMsg = msg
	s.timing.Features = nil
	s.setState(engine.AppIdle)
}

// Reset abandons the current track: audio stops and unloads, the record and
// error clear, and the scene returns home.
func (s *Session) Reset() {
	s.cancelWork()
	s.uploadID = ""
	s.ctrl.Unload()
	s.errMsg = ""
	s.caption = ""
	s.waveform = nil
	s.fileName = ""
	s.timing.Features = nil
	s.setState(engine.AppIdle)
}

// MarkUnavailable disables playback and analysis for the life of the
// process. The message persists through Reset.
func (s *Session) MarkUnavailable(err error) {
	if s.unavailable != nil {
		return
	}
	s.Reset()
	s.unavailable = err
	log.Printf("WARN session: audio output unavailable: %v", err)
}

// Unavailable returns the error passed to MarkUnavailable, or nil.
func (s *Session) Unavailable() error { return s.unavailable }

// Transport runs a playback command unless the audio output is down.
func (s *Session) Transport(cmd func(*playback.Controller)) error {
	if s.unavailable != nil {
		return s.unavailable
	}
	if !s.ctrl.Loaded() {
		return ErrNothingLoaded
	}
	cmd(s.ctrl)
	return nil
}

// Replay starts the loaded track over from the top at the initial gain. With
// results on screen the gain ramps back up as it did after analysis.
func (s *Session) Replay() error {
	return s.Transport(func(c *playback.Controller) {
		c.Stop()
		c.Play()
		if s.state == engine.AppResultsShown {
			s.scheduleRamp(s.uploadID)
		}
	})
}

func (s *Session) scheduleRamp(id string) {
	s.loop.After(s.opts.RampDelay, func() {
		if id == s.uploadID && s.state == engine.AppResultsShown {
			s.ctrl.RampUp()
		}
	})
}

func (s *Session) setState(st engine.AppState) {
	s.state = st
	s.choreo.Update(st, s.timing.Features)
}

func (s *Session) cancelWork() {
	if s.abort != nil {
		s.abort()
		s.abort = nil
	}
}

// Close abandons in-flight work.
func (s *Session) Close() { s.cancelWork() }

// Status is the UI projection of the session.
type Status struct {
	UploadID    string                  `json:"uploadId,omitempty"`
	State       engine.AppState         `json:"appState"`
	Error       string                  `json:"error,omitempty"`
	Unavailable bool                    `json:"unavailable"`
	FileName    string                  `json:"fileName,omitempty"`
	Playback    PlaybackStatus          `json:"playback"`
	Features    *analysis.FeatureRecord `json:"features,omitempty"`
	Phase       choreo.Phase            `json:"phase"`
	Caption     string                  `json:"caption,omitempty"`
	Waveform    bool                    `json:"waveformReady"`
}

// PlaybackStatus mirrors the transport bar.
type PlaybackStatus struct {
	Playing     bool    `json:"isPlaying"`
	Seeking     bool    `json:"seeking"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
}

// Status snapshots the session.
func (s *Session) Status() Status {
	st := Status{
		UploadID: s.uploadID,
		State:    s.state,
		Error:    s.errMsg,
		FileName: s.fileName,
		Playback: PlaybackStatus{
			Playing:     s.ctrl.Playing(),
			Seeking:     s.ctrl.Seeking(),
			CurrentTime: s.timing.CurrentTime,
			Duration:    s.timing.Duration,
		},
		Features: s.timing.Features,
		Phase:    s.choreo.Phase(),
		Caption:  s.caption,
		Waveform: s.waveform != nil,
	}
	if s.unavailable != nil {
		st.Unavailable = true
		st.Error = s.unavailable.Error()
	}
	return st
}

func isMP3(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "audio/mpeg"
}
