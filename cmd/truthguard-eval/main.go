// Command truthguard-eval analyses local files with the same pipeline as the
// server and optionally benchmarks it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/analyzer"
	"github.com/truthguard/truthguard/internal/app"
	"github.com/truthguard/truthguard/internal/config"
	"github.com/truthguard/truthguard/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "truthguard.yaml", "path to config yaml")
	text := flag.String("text", "", "analyse this text instead of files")
	modality := flag.String("modality", "", "text | image | video (default: from file extension)")
	n := flag.Int("n", 1, "iterations per input; >1 prints latency percentiles")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	// Keep stdout for results.
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: "console", Output: os.Stderr})

	ctx := context.Background()
	tg, err := app.Build(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("build analyzer: %v", err)
	}
	defer tg.Close()

	if *n <= 0 {
		*n = 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *text != "" {
		run := func() analysis.Result { return tg.Analyzer.AnalyzeText(ctx, *text) }
		report(enc, "-text", run, *n)
		return
	}

	if flag.NArg() == 0 {
		log.Fatalf("pass -text or one or more files")
	}
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		m := *modality
		if m == "" {
			m = modalityFor(path)
		}
		run, err := runner(ctx, tg.Analyzer, m, data)
		if err != nil {
			log.Fatalf("%s: %v", path, err)
		}
		report(enc, path, run, *n)
	}
}

func runner(ctx context.Context, a *analyzer.Analyzer, modality string, data []byte) (func() analysis.Result, error) {
	switch modality {
	case "text":
		s := string(data)
		return func() analysis.Result { return a.AnalyzeText(ctx, s) }, nil
	case "image":
		return func() analysis.Result { return a.AnalyzeImage(ctx, data) }, nil
	case "video":
		return func() analysis.Result { return a.AnalyzeVideo(ctx, data) }, nil
	default:
		return nil, fmt.Errorf("unknown modality %q", modality)
	}
}

func modalityFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp":
		return "image"
	case ".mp4", ".mov", ".avi", ".mkv", ".webm":
		return "video"
	default:
		return "text"
	}
}

func report(enc *json.Encoder, name string, run func() analysis.Result, n int) {
	// Warmup
	res := run()
	if err := enc.Encode(map[string]any{"input": name, "result": res}); err != nil {
		log.Fatalf("encode result: %v", err)
	}
	if n == 1 {
		return
	}

	durations := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		start := time.Now()
		run()
		durations = append(durations, time.Since(start))
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}
	avg := float64(total.Microseconds()) / 1000.0 / float64(len(durations))
	p50 := float64(durations[len(durations)/2].Microseconds()) / 1000.0
	p95 := float64(durations[int(float64(len(durations))*0.95)].Microseconds()) / 1000.0

	fmt.Fprintf(os.Stderr, "bench: input=%s modality=%s n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f\n",
		name,
		res.Modality,
		len(durations),
		avg,
		p50,
		p95,
	)
}
