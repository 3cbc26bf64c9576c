// Command auralis runs the live listening engine from a terminal: it captures
// mic (and, where supported, system speaker) audio, streams it to the
// configured transcription provider, and prints the assembled transcript when
// the session ends.
//
// Usage:
//
//	auralis [-config auralis.yaml]             run a listening session
//	auralis [-config auralis.yaml] batch FILE  transcribe a recorded WAV clip
//
// API keys are read from the environment (AURALIS_API_KEY), with a .env file
// loaded when present.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/auralis-ai/auralis/internal/config"
	"github.com/auralis-ai/auralis/internal/hooks"
	"github.com/auralis-ai/auralis/internal/listener"
	"github.com/auralis-ai/auralis/internal/observe"
	"github.com/auralis-ai/auralis/internal/resilience"
	"github.com/auralis-ai/auralis/internal/transcript"
	"github.com/auralis-ai/auralis/pkg/audio"
	"github.com/auralis-ai/auralis/pkg/stt"
	"github.com/auralis-ai/auralis/pkg/stt/assemblyai"
	"github.com/auralis-ai/auralis/pkg/stt/batch"
	"github.com/auralis-ai/auralis/pkg/stt/dashscope"
	"github.com/auralis-ai/auralis/pkg/stt/deepgram"
	"github.com/auralis-ai/auralis/pkg/stt/relay"
	"github.com/auralis-ai/auralis/pkg/stt/soniox"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "auralis.yaml", "path to the YAML configuration file")
	record := flag.Bool("record", false, "force session recording on")
	flag.Parse()

	if err := run(*configPath, *record, flag.Args()); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, forceRecord bool, args []string) error {
	// A local .env is a convenience for API keys; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if key := os.Getenv("AURALIS_API_KEY"); key != "" {
		cfg.Transcribe.APIKey = key
	}
	if forceRecord {
		cfg.Session.RecordEnabled = true
	}

	setupLogging(cfg.Server.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "auralis",
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownObserve(shutdownCtx)
	}()

	if len(args) > 0 && args[0] == "batch" {
		if len(args) < 2 {
			return fmt.Errorf("batch: usage: auralis batch FILE")
		}
		return runBatch(ctx, cfg, args[1])
	}
	return runListen(ctx, cfg)
}

func runListen(ctx context.Context, cfg *config.Config) error {
	adapter, err := buildAdapter(cfg.Transcribe.Provider)
	if err != nil {
		return err
	}

	capture, err := audio.NewMalgoCapture()
	if err != nil {
		return err
	}
	defer capture.Close()

	bus := listener.NewBus()
	events := bus.Subscribe(256)

	view := transcript.NewView()
	var viewMu sync.Mutex

	var group errgroup.Group
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	if cfg.Server.MetricsAddr != "" {
		group.Go(func() error {
			return serveMetrics(workerCtx, cfg.Server.MetricsAddr)
		})
	}

	// Event consumer: feed transcript frames from stream responses, surface
	// lifecycle and error events on the console.
	group.Go(func() error {
		for event := range events {
			switch e := event.(type) {
			case listener.LifecycleEvent:
				if e.Error != nil {
					slog.Warn("session degraded", "state", e.State, "err", e.Error.Error())
				} else {
					slog.Info("session state", "state", e.State)
				}
			case listener.ErrorEvent:
				slog.Warn("session error", "kind", e.Kind, "err", e.Error)
			case listener.DataEvent:
				if e.Kind != listener.DataStreamResponse || e.Response == nil {
					continue
				}
				if in, ok := transcript.FromStreamResponse(e.Response); ok {
					viewMu.Lock()
					view.Process(in)
					viewMu.Unlock()
				}
			}
		}
		return nil
	})

	params := listener.SessionParams{
		SessionID:     sessionID(),
		Model:         cfg.Transcribe.Model,
		BaseURL:       cfg.Transcribe.BaseURL,
		APIKey:        cfg.Transcribe.APIKey,
		Languages:     cfg.Session.Languages,
		Keywords:      cfg.Session.Keywords,
		RecordEnabled: cfg.Session.RecordEnabled,
	}

	session, err := listener.Start(ctx, listener.Config{
		Params:        params,
		Capture:       capture,
		Adapter:       adapter,
		Sink:          bus,
		RecordingsDir: cfg.Session.RecordingsDir,
		MicDevice:     cfg.Audio.MicDevice,
		Hooks:         hooks.New(cfg.Hooks.OnSessionStart, cfg.Hooks.OnSessionStop),
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "listening... press ctrl-c to stop")

	select {
	case <-ctx.Done():
	case <-session.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := session.Shutdown(shutdownCtx); err != nil {
		slog.Warn("session shutdown incomplete", "err", err)
	}

	bus.Close()
	stopWorkers()
	if err := group.Wait(); err != nil {
		slog.Warn("background worker error", "err", err)
	}

	viewMu.Lock()
	view.Flush(transcript.FlushDrainAll)
	frame := view.Frame()
	viewMu.Unlock()

	fmt.Println(renderTranscript(frame))
	return nil
}

func runBatch(ctx context.Context, cfg *config.Config, path string) error {
	wavBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("batch: read %s: %w", path, err)
	}

	guard := resilience.NewBatchGuard(
		batch.New(cfg.Transcribe.BaseURL, cfg.Transcribe.APIKey),
		resilience.CircuitBreakerConfig{},
	)

	started := time.Now()
	resp, err := guard.Transcribe(ctx, batch.Request{
		WAV:   wavBytes,
		Model: cfg.Transcribe.Model,
	})
	observe.DefaultMetrics().BatchDuration.Record(ctx, time.Since(started).Seconds())
	if err != nil {
		return err
	}

	for _, channel := range resp.Channels {
		for _, alt := range channel.Alternatives {
			fmt.Println(strings.TrimSpace(alt.Transcript))
		}
	}
	return nil
}

func buildAdapter(provider string) (stt.Adapter, error) {
	switch provider {
	case "deepgram":
		return deepgram.Adapter{}, nil
	case "assemblyai":
		return assemblyai.Adapter{}, nil
	case "soniox":
		return soniox.Adapter{}, nil
	case "dashscope":
		return dashscope.Adapter{}, nil
	case "relay":
		return relay.Adapter{}, nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", provider)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})))
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    addr,
		Handler: observe.Middleware(observe.DefaultMetrics())(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// renderTranscript flattens a frame into display text: the confirmed history
// followed by the not-yet-confirmed tail in brackets.
func renderTranscript(frame transcript.Frame) string {
	var sb strings.Builder
	for _, w := range frame.FinalWords {
		sb.WriteString(w.Text)
	}
	if len(frame.PartialWords) > 0 {
		sb.WriteString(" [")
		for _, w := range frame.PartialWords {
			sb.WriteString(w.Text)
		}
		sb.WriteString("]")
	}
	return strings.TrimSpace(sb.String())
}

func sessionID() string {
	return fmt.Sprintf("session-%s-%s",
		time.Now().UTC().Format("20060102T1504Z"),
		uuid.NewString()[:8],
	)
}
