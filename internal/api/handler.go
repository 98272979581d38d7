// Package api is the HTTP surface: upload, transport control, status and the
// waveform. Every handler hops onto the event loop with Loop.Do.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/satindergrewal/harmonia/internal/analysis"
	"github.com/satindergrewal/harmonia/internal/audio"
	"github.com/satindergrewal/harmonia/internal/engine"
	"github.com/satindergrewal/harmonia/internal/playback"
	"github.com/satindergrewal/harmonia/internal/scene"
	"github.com/satindergrewal/harmonia/internal/session"
)

// Options carries the optional routes and limits.
type Options struct {
	MaxUploadBytes int64

	Scene  http.Handler // GET /api/scene, server-sent scene snapshots
	Stream http.Handler // GET /stream, MP3
	Offer  http.Handler // POST /offer, WebRTC signalling

	// AnalysisHealthy is reported on /health when set.
	AnalysisHealthy func(ctx context.Context) bool
}

// Server routes requests to the session.
type Server struct {
	loop  *engine.Loop
	sess  *session.Session
	scene *scene.Scene
	opts  Options
	mux   *http.ServeMux
}

// New builds the router. sess and sc are loop-owned; the server only touches
// them inside Loop.Do.
func New(loop *engine.Loop, sess *session.Session, sc *scene.Scene, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	s := &Server{loop: loop, sess: sess, scene: sc, opts: opts, mux: http.NewServeMux()}

	s.mux.HandleFunc("/health", s.health)
	s.mux.HandleFunc("/api/status", s.status)
	s.mux.HandleFunc("/api/upload", post(s.upload))
	s.mux.HandleFunc("/api/play", post(s.replay))
	s.mux.HandleFunc("/api/resume", post(s.transport((*playback.Controller).Resume)))
	s.mux.HandleFunc("/api/pause", post(s.transport((*playback.Controller).Pause)))
	s.mux.HandleFunc("/api/toggle", post(s.transport((*playback.Controller).Toggle)))
	s.mux.HandleFunc("/api/stop", post(s.transport((*playback.Controller).Stop)))
	s.mux.HandleFunc("/api/seek", post(s.seek))
	s.mux.HandleFunc("/api/seek-relative", post(s.seekRelative))
	s.mux.HandleFunc("/api/reset", post(s.reset))
	s.mux.HandleFunc("/api/waveform", s.waveform)
	s.mux.HandleFunc("/api/field", s.field)

	if opts.Scene != nil {
		s.mux.Handle("/api/scene", opts.Scene)
	}
	if opts.Stream != nil {
		s.mux.Handle("/stream", opts.Stream)
	}
	if opts.Offer != nil {
		s.mux.Handle("/offer", opts.Offer)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.opts.AnalysisHealthy != nil {
		resp["analysis"] = s.opts.AnalysisHealthy(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	var st session.Status
	if !s.do(w, r, func() { st = s.sess.Status() }) {
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty upload", http.StatusBadRequest)
		return
	}
	name := r.Header.Get("X-File-Name")
	if name == "" {
		name = "upload.mp3"
	}

	var id string
	if !s.do(w, r, func() { id, err = s.sess.Upload(name, r.Header.Get("Content-Type"), data) }) {
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "uploadId": id})
}

func (s *Server) transport(cmd func(*playback.Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.control(w, r, cmd)
	}
}

// replay restarts the track from the top; /api/resume continues from the
// paused offset.
func (s *Server) replay(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.sess.Replay)
}

func (s *Server) seek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time *float64 `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Time == nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	s.control(w, r, func(c *playback.Controller) { c.Seek(*req.Time) })
}

func (s *Server) seekRelative(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta *float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Delta == nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	s.control(w, r, func(c *playback.Controller) { c.SeekRelative(*req.Delta) })
}

func (s *Server) control(w http.ResponseWriter, r *http.Request, cmd func(*playback.Controller)) {
	s.respond(w, r, func() error { return s.sess.Transport(cmd) })
}

// respond runs op on the loop and answers with the resulting playback status.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, op func() error) {
	var (
		err error
		st  session.Status
	)
	if !s.do(w, r, func() {
		err = op()
		st = s.sess.Status()
	}) {
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "playback": st.Playback})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if !s.do(w, r, s.sess.Reset) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) waveform(w http.ResponseWriter, r *http.Request) {
	var points []float64
	if !s.do(w, r, func() { points = s.sess.Waveform() }) {
		return
	}
	if points == nil {
		http.Error(w, "no waveform yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

// field returns the static point cloud; clients draw it once and apply the
// rotations from the scene stream.
func (s *Server) field(w http.ResponseWriter, r *http.Request) {
	var points []mgl64.Vec3
	if !s.do(w, r, func() {
		if s.scene.Field != nil {
			points = s.scene.Field.Points()
		}
	}) {
		return
	}
	if points == nil {
		http.Error(w, "no ambient field", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"radius": scene.Radius, "points": points})
}

// do runs fn on the loop. It answers 503 and returns false if the request
// ends first.
func (s *Server) do(w http.ResponseWriter, r *http.Request, fn func()) bool {
	if err := s.loop.Do(r.Context(), fn); err != nil {
		http.Error(w, "engine busy", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrUnsupportedMedia):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, audio.ErrDecode):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, audio.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, analysis.ErrAnalysis):
		status = http.StatusBadGateway
	case errors.Is(err, session.ErrNothingLoaded):
		status = http.StatusConflict
	default:
		log.Printf("WARN api: %v", err)
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN api: encode response: %v", err)
	}
}
