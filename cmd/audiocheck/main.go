// audiocheck - exercise the audio backends without a translation
// session. Captures from the microphone with a level meter, or plays a
// test tone, so device problems are diagnosed before burning API
// quota.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voxbridge/voxbridge/internal/log"
	"github.com/voxbridge/voxbridge/pkg/audioio"
	"github.com/voxbridge/voxbridge/pkg/spectrum"
)

func main() {
	backend := flag.String("audio", "auto", "Audio backend: auto, ffmpeg, rtp, mock")
	device := flag.String("device", "", "Device identifier (backend specific)")
	rate := flag.Int("rate", 16000, "Sample rate in Hz")
	duration := flag.Duration("duration", 10*time.Second, "How long to run")
	mode := flag.String("mode", "capture", "Test mode: capture, tone, list")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	log.Init(*logLevel, "")

	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.Backend(*backend)
	cfg.SampleRate = *rate
	cfg.Device = *device

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, timeout := context.WithTimeout(ctx, *duration)
	defer timeout()

	var err error
	switch *mode {
	case "list":
		listBackends()
	case "capture":
		err = runCapture(ctx, cfg)
	case "tone":
		err = runTone(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "audiocheck: %v\n", err)
		os.Exit(1)
	}
}

func listBackends() {
	fmt.Println("available audio backends:")
	for _, b := range audioio.AvailableBackends() {
		fmt.Printf("  %s\n", b)
	}
}

// runCapture reads microphone chunks and renders a level meter with
// spectrum bars.
func runCapture(ctx context.Context, cfg audioio.Config) error {
	source, err := audioio.NewSource(cfg, log.L())
	if err != nil {
		return err
	}
	defer source.Close()

	if err := source.Start(ctx); err != nil {
		return err
	}
	defer source.Stop()

	analyzer := spectrum.NewAnalyzer()
	fmt.Printf("capturing at %d Hz (requested) - Ctrl+C to stop\n", cfg.SampleRate)

	for {
		chunk, err := source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println()
				return nil
			}
			return err
		}

		analyzer.Push(chunk.Samples)
		rms := audioio.CalculateRMS(chunk.Samples)
		fmt.Printf("\r\033[K%4d Hz  %s  %s", chunk.SampleRate, meter(rms), bars(analyzer.Snapshot(16)))
	}
}

// runTone plays a 440Hz sine through the sink.
func runTone(ctx context.Context, cfg audioio.Config) error {
	sink, err := audioio.NewSink(cfg, log.L())
	if err != nil {
		return err
	}
	defer sink.Close()

	if err := sink.Start(ctx); err != nil {
		return err
	}
	defer sink.Stop()

	fmt.Println("playing 440 Hz test tone - Ctrl+C to stop")

	phase := 0.0
	step := 2 * math.Pi * 440 / float64(cfg.SampleRate)
	ticker := time.NewTicker(cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return sink.Flush(context.Background())
		case <-ticker.C:
			samples := make([]int16, cfg.BufferSize())
			for i := range samples {
				samples[i] = int16(16000 * math.Sin(phase))
				phase += step
			}
			chunk := audioio.AudioChunk{Samples: samples, SampleRate: cfg.SampleRate, Channels: 1}
			if err := sink.Write(ctx, chunk); err != nil {
				return err
			}
		}
	}
}

// meter renders an RMS level bar.
func meter(rms float64) string {
	const width = 20
	filled := int(rms * width * 4) // speech RMS rarely exceeds 0.25
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// bars renders spectrum buckets as block characters.
func bars(values []float64) string {
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
