package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/satindergrewal/harmonia/internal/analysis"
	"github.com/satindergrewal/harmonia/internal/api"
	"github.com/satindergrewal/harmonia/internal/audio"
	"github.com/satindergrewal/harmonia/internal/choreo"
	"github.com/satindergrewal/harmonia/internal/config"
	"github.com/satindergrewal/harmonia/internal/engine"
	"github.com/satindergrewal/harmonia/internal/ollama"
	"github.com/satindergrewal/harmonia/internal/playback"
	"github.com/satindergrewal/harmonia/internal/render"
	"github.com/satindergrewal/harmonia/internal/scene"
	"github.com/satindergrewal/harmonia/internal/session"
	"github.com/satindergrewal/harmonia/internal/stream"
	"github.com/satindergrewal/harmonia/internal/tween"
)

const fieldPoints = 5000

var (
	cyan = color.New(color.FgCyan, color.Bold)
	red  = color.New(color.FgRed, color.Bold)
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cyan.Println("harmonia starting up...")

	// Event loop owns every piece of engine state below.
	frameRate := cfg.FrameRate
	if frameRate <= 0 {
		frameRate = 60
	}
	loop := engine.NewLoop(engine.SystemClock{}, time.Second/time.Duration(frameRate))
	timing := &engine.TimingState{}

	// Audio graph
	dev := audio.NewDevice()
	pcfg := playback.DefaultConfig()
	pcfg.InitialGain = cfg.InitialGain
	pcfg.RampDuration = cfg.RampDuration
	ctrl := playback.New(loop, dev, timing, pcfg)

	// Scene, transitions and per-frame motion. Tweens run before the render
	// hook each frame.
	sc := scene.New(fieldPoints, uint64(time.Now().UnixNano()))
	tw := tween.NewManager()
	ch := choreo.New(loop, tw, sc, choreo.DefaultConfig())

	snapshots := stream.NewBroadcaster[render.Snapshot](8)
	renderer := render.NewSnapshotRenderer(snapshots, cfg.ScenePublishRate)
	frames := render.New(sc, ch, timing, dev, renderer)
	loop.OnFrame(tw.Advance)
	loop.OnFrame(frames.Frame)

	// Analysis gateway, optionally behind the sqlite cache
	retries := cfg.AnalysisMaxRetries
	if retries == 0 {
		retries = -1
	}
	client := analysis.NewClient(analysis.ClientConfig{
		URL:          cfg.AnalysisURL,
		APIKey:       cfg.AnalysisAPIKey,
		Timeout:      cfg.AnalysisTimeout,
		TokenURL:     cfg.AnalysisTokenURL,
		ClientID:     cfg.AnalysisClientID,
		ClientSecret: cfg.AnalysisClientSecret,
		MaxRetries:   retries,
	})
	var analyzer analysis.Analyzer = client
	if cfg.CachePath != "" {
		cache, err := analysis.OpenCache(cfg.CachePath)
		if err != nil {
			log.Printf("WARN analysis cache disabled: %v", err)
		} else {
			defer cache.Close()
			analyzer = analysis.NewCachedAnalyzer(client, cache)
			log.Printf("Analysis cache: %s", cfg.CachePath)
		}
	}

	// Ollama LLM (optional -- replaces the static mood captions)
	opts := session.Options{
		Analyzer:        analyzer,
		AnalysisTimeout: cfg.AnalysisTimeout,
	}
	if cfg.OllamaURL != "" {
		oc := ollama.NewClient(cfg.OllamaURL, cfg.OllamaModel, 0)
		opts.Describer = ollama.NewDescriber(oc)

		checkCtx, checkCancel := context.WithTimeout(ctx, 5*time.Second)
		if oc.Available(checkCtx) {
			log.Printf("Ollama connected: %s (LLM mood descriptions enabled)", oc.Model())
		} else {
			log.Printf("WARN Ollama not reachable at %s, descriptions fall back to static captions", cfg.OllamaURL)
		}
		checkCancel()
	} else {
		log.Println("Ollama not configured (set OLLAMA_URL to enable LLM mood descriptions)")
	}

	sess := session.New(loop, ctrl, ch, timing, opts)

	// Audio output: the local sound card, or the network streams.
	apiOpts := api.Options{
		MaxUploadBytes:  int64(cfg.MaxUploadMB) << 20,
		Scene:           stream.NewEventHandler(snapshots, "scene"),
		AnalysisHealthy: client.Healthy,
	}
	switch cfg.AudioOutput {
	case "speaker":
		if err := audio.PlayOnSpeaker(dev); err != nil {
			red.Printf("Audio output unavailable: %v\n", err)
			red.Println("Playback and analysis are disabled for this session.")
			loop.Post(func() { sess.MarkUnavailable(err) })
		} else {
			defer audio.CloseSpeaker()
			log.Println("Audio output: local speaker")
		}
	default:
		pump := audio.NewPump(dev)
		go pump.Run(ctx)

		pcm := stream.NewBroadcaster[[]int16](150)
		go pcm.Run(ctx, pump.Frames())

		webrtcHandler := stream.NewWebRTCHandler(pcm, 0)
		defer webrtcHandler.Close()
		apiOpts.Stream = stream.NewAudioHandler(pcm, 0)
		apiOpts.Offer = webrtcHandler
		log.Println("Audio output: /stream (MP3) and /offer (WebRTC)")
	}

	go loop.Run(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: api.New(loop, sess, sc, apiOpts)}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	cyan.Printf("harmonia live on %s\n", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
