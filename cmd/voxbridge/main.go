// voxbridge - live speech-to-speech translation at the terminal.
//
// Captures microphone audio, streams it to a hosted live translation
// model, and plays the translated speech back without gaps. A small
// web dashboard mirrors the session state, transcript, and spectrum.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/log"
	"github.com/voxbridge/voxbridge/internal/metrics"
	"github.com/voxbridge/voxbridge/pkg/interpreter"
	"github.com/voxbridge/voxbridge/pkg/transcript"
	"github.com/voxbridge/voxbridge/pkg/web"

	// Register the bundled live providers.
	_ "github.com/voxbridge/voxbridge/pkg/live/bundled"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	provider := flag.String("provider", "", "Live provider: gemini, openai")
	sourceLang := flag.String("from", "", "Source language")
	targetLang := flag.String("to", "", "Target language")
	backend := flag.String("audio", "", "Audio backend: auto, ffmpeg, rtp, mock")
	webAddr := flag.String("web", "", "Dashboard listen address (empty = config default)")
	noWeb := flag.Bool("no-web", false, "Disable the web dashboard")
	autostart := flag.Bool("autostart", true, "Start the session immediately")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	// .env is optional; real env vars win inside Load.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	if *provider != "" {
		cfg.Session.Provider = *provider
	}
	if *sourceLang != "" {
		cfg.Session.SourceLanguage = *sourceLang
	}
	if *targetLang != "" {
		cfg.Session.TargetLanguage = *targetLang
	}
	if *backend != "" {
		cfg.Audio.Backend = *backend
	}
	if *webAddr != "" {
		cfg.Web.Addr = *webAddr
	}
	if *noWeb {
		cfg.Web.Enabled = false
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger := log.L()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireCredential(); err != nil {
		logger.Error("missing credential", "error", err,
			"hint", "set GOOGLE_API_KEY or OPENAI_API_KEY")
		os.Exit(1)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer srv.Close()
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
	}

	app := NewApp(cfg, m, logger)
	defer app.Close()

	app.OnEntry = printEntry

	var dashboard *web.Server
	if cfg.Web.Enabled {
		dashboard = web.NewServer(cfg.Web.Addr, app, logger)
		dashboard.StartAsync()
		defer dashboard.Shutdown()
	}
	app.OnState = func(s interpreter.State) {
		logger.Info("session state", "state", s)
		if dashboard != nil {
			dashboard.BroadcastState(string(s))
		}
	}
	if dashboard != nil {
		app.OnEntry = func(e transcript.Entry) {
			printEntry(e)
			dashboard.BroadcastTranscript(e)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *autostart {
		if err := app.StartSession(ctx); err != nil {
			logger.Error("start session failed", "error", err)
			os.Exit(1)
		}
	}

	fmt.Printf("voxbridge: %s → %s via %s\n",
		cfg.Session.SourceLanguage, cfg.Session.TargetLanguage, cfg.Session.Provider)
	fmt.Println("commands: start | stop | spectrum | quit")

	go readCommands(ctx, app, cancel, logger)

	<-ctx.Done()
	fmt.Println("\nshutting down")
}

// readCommands drives the session from stdin.
func readCommands(ctx context.Context, app *App, quit context.CancelFunc, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "start":
			if err := app.StartSession(ctx); err != nil {
				logger.Error("start failed", "error", err)
			}
		case "stop":
			if err := app.StopSession(); err != nil {
				logger.Error("stop failed", "error", err)
			}
		case "spectrum":
			fmt.Println(spectrumLine(app.Spectrum(32)))
		case "quit", "exit":
			quit()
			return
		case "":
		default:
			fmt.Println("commands: start | stop | spectrum | quit")
		}
	}
}

// spectrumLine renders the visualization bars as block characters.
func spectrumLine(values []float64) string {
	blocks := []rune(" ▁▂▃▄▅▆▇█")
	var b strings.Builder
	for _, v := range values {
		idx := int(v * float64(len(blocks)-1) * 4)
		if idx >= len(blocks) {
			idx = len(blocks) - 1
		}
		b.WriteRune(blocks[idx])
	}
	return b.String()
}

// printEntry renders a transcript update on the terminal. Partials
// redraw in place; finals get a newline.
func printEntry(e transcript.Entry) {
	label := "you"
	if e.Sender == transcript.SenderTranslator {
		label = "voxbridge"
	}
	if e.Final {
		fmt.Printf("\r\033[K[%s] %s\n", label, e.Text)
	} else {
		fmt.Printf("\r\033[K[%s] %s", label, e.Text)
	}
}
