package main

import (
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"deepcheck/config"
	"deepcheck/internal/detect"
	"deepcheck/internal/inference"
	"deepcheck/internal/pipeline"
	"deepcheck/internal/risk"
)

// consoleHandler prints pipeline results for the operator.
type consoleHandler struct {
	log *logrus.Logger
}

func (h *consoleHandler) OnResult(fakeProb float32, level risk.Level, seq uint64) {
	h.log.WithFields(logrus.Fields{
		"seq":       seq,
		"fake_prob": fmt.Sprintf("%.3f", fakeProb),
		"level":     level.String(),
	}).Info("frame classified")
}

func (h *consoleHandler) OnFaceStatus(found bool, box image.Rectangle) {
	if !found {
		h.log.Debug("no face")
		return
	}
	h.log.WithField("box", box.String()).Debug("face located")
}

func (h *consoleHandler) OnError(err error, seq uint64) {
	h.log.WithField("seq", seq).WithError(err).Error("frame failed")
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	fmt.Println("================================================================================")
	fmt.Println("🔍 deepcheck - on-device media-authenticity pipeline")
	fmt.Println("================================================================================")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	lg := logrus.New()
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("❌ Invalid log level %q: %v", cfg.Logging.Level, err)
	}
	lg.SetLevel(level)
	if cfg.Logging.Diagnostics {
		lg.SetLevel(logrus.DebugLevel)
	}

	log.Printf("✅ Configuration loaded from %s", *cfgPath)
	log.Printf("   Model: %s (%dx%dx3)", cfg.Model.Path, cfg.Model.InputWidth, cfg.Model.InputHeight)
	log.Printf("   Min interval: %dms, thresholds: low_max=%.2f high_min=%.2f",
		cfg.Pipeline.MinIntervalMs, cfg.Pipeline.LowMax, cfg.Pipeline.HighMin)

	if err := inference.InitRuntime(cfg.ONNX.LibraryPath); err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer inference.DestroyRuntime()

	classifier, err := inference.NewONNXClassifier(cfg.Model.Path, cfg.Model.InputWidth, cfg.Model.InputHeight)
	if err != nil {
		log.Fatalf("❌ Failed to load model: %v", err)
	}
	log.Println("✅ Classifier loaded")

	engine := inference.NewEngine(classifier)
	defer engine.Release()

	locator, err := detect.NewCascadeLocator(cfg.Detector.CascadePath, cfg.Detector.MinFaceSize)
	if err != nil {
		log.Fatalf("❌ Failed to create face locator: %v", err)
	}
	defer locator.Close()
	log.Println("✅ Face locator ready")

	handler := &consoleHandler{log: lg}
	opts := pipeline.Options{
		MinInterval: time.Duration(cfg.Pipeline.MinIntervalMs) * time.Millisecond,
		Thresholds:  risk.Thresholds{LowMax: cfg.Pipeline.LowMax, HighMin: cfg.Pipeline.HighMin},
		InputWidth:  cfg.Model.InputWidth,
		InputHeight: cfg.Model.InputHeight,
		ScoreWindow: cfg.Pipeline.ScoreWindow,
		SampleRate:  cfg.Logging.SampleRate,
	}

	var diagLog *logrus.Logger
	if cfg.Logging.Diagnostics {
		diagLog = lg
	}
	p, err := pipeline.New(locator, engine, handler, diagLog, opts)
	if err != nil {
		log.Fatalf("❌ Failed to build pipeline: %v", err)
	}

	source, err := openFileSource(cfg.Source.Path, cfg.Source.Width, cfg.Source.Height)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer source.Close()

	log.Printf("✅ Frame source: %s (%dx%d @ %d fps)",
		cfg.Source.Path, cfg.Source.Width, cfg.Source.Height, cfg.Source.FPS)
	fmt.Println("\n▶️  Processing frames (Ctrl-C to stop)")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(cfg.Source.FPS))
	defer ticker.Stop()

loop:
	for {
		select {
		case <-stop:
			break loop
		case <-ticker.C:
			frame, err := source.Next()
			if err == io.EOF {
				break loop
			}
			if err != nil {
				log.Printf("⚠️  Frame read failed: %v", err)
				break loop
			}
			p.Process(frame)
		}
	}

	stats := p.Stats()
	fmt.Println("\n================================================================================")
	log.Printf("Session %s summary:", p.Session())
	log.Printf("   Accepted: %d, dropped (busy): %d, dropped (interval): %d",
		stats.Accepted, stats.DroppedBusy, stats.DroppedInterval)
	log.Printf("   No face: %d, errors: %d", stats.NoFace, stats.Errors)
	if stats.Scores.Count > 0 {
		log.Printf("   Fake probability: mean=%.3f stddev=%.3f max=%.3f over %d frames",
			stats.Scores.Mean, stats.Scores.StdDev, stats.Scores.Max, stats.Scores.Count)
	}
}
