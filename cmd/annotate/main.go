package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/dudu/facealign/internal/annotation"
	"github.com/dudu/facealign/internal/detector"
	"github.com/dudu/facealign/internal/inference"
	"github.com/dudu/facealign/pkg/log"
)

type Config struct {
	ImageDir   string
	Output     string
	ModelPath  string
	ORTLibrary string
	MinScore   float64
	InputSize  int
	CoreML     bool
	LogLevel   string
}

func main() {
	config := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() Config {
	config := Config{}
	def := detector.DefaultConfig()

	flag.StringVar(&config.ImageDir, "images", "images", "Directory of source images")
	flag.StringVar(&config.Output, "out", "save.json", "Annotation file to write; existing entries are kept unless re-detected")
	flag.StringVar(&config.ModelPath, "model", "models/scrfd_10g.onnx", "SCRFD ONNX model")
	flag.StringVar(&config.ORTLibrary, "ort-lib", "", "ONNX Runtime shared library path")
	flag.Float64Var(&config.MinScore, "min-score", float64(def.ConfThreshold), "Minimum detection score")
	flag.IntVar(&config.InputSize, "det-size", def.InputSize, "Detector input size")
	flag.BoolVar(&config.CoreML, "coreml", false, "Use the CoreML execution provider")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "annotate - detect face landmarks for dataset building\n\n")
		fmt.Fprintf(os.Stderr, "Usage: annotate [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  annotate -images images -out save.json\n")
		fmt.Fprintf(os.Stderr, "  annotate -min-score 0.7 -coreml\n")
	}

	flag.Parse()
	return config
}

func run(ctx context.Context, config Config) error {
	logger := log.NewLogger(log.Options{Level: config.LogLevel})

	store, err := annotation.Load(config.Output)
	if errors.Is(err, fs.ErrNotExist) {
		store = annotation.Store{}
	} else if err != nil {
		return err
	}

	if err := inference.Initialize(config.ORTLibrary); err != nil {
		return err
	}
	defer inference.Shutdown()

	detCfg := detector.DefaultConfig()
	detCfg.InputSize = config.InputSize
	detCfg.ConfThreshold = float32(config.MinScore)
	det, err := detector.NewSCRFD(config.ModelPath, detCfg, inference.Options{CoreML: config.CoreML})
	if err != nil {
		return fmt.Errorf("failed to create detector: %w", err)
	}
	defer det.Close()

	a := &annotation.Annotator{
		Detector: det,
		MinScore: float32(config.MinScore),
		Logger:   logger,
	}
	n, annErr := a.Annotate(ctx, config.ImageDir, store)

	// keep whatever was annotated before an interruption
	if err := annotation.Save(config.Output, store); err != nil {
		return errors.Join(annErr, err)
	}
	logger.WithFields(log.Fields{"faces": n, "files": len(store), "out": config.Output}).Info("annotations saved")
	return annErr
}
