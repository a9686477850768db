package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facealign/internal/align"
	"github.com/dudu/facealign/internal/annotation"
	"github.com/dudu/facealign/internal/config"
	"github.com/dudu/facealign/internal/dataset"
	"github.com/dudu/facealign/internal/enhancer"
	"github.com/dudu/facealign/internal/inference"
	"github.com/dudu/facealign/pkg/log"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger := log.NewLogger(log.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	alignCfg, err := cfg.AlignConfig()
	if err != nil {
		return err
	}

	up, err := newUpscaler(cfg)
	if err != nil {
		return err
	}
	defer up.Close()

	aligner, err := align.NewAligner(alignCfg, up, logger)
	if err != nil {
		return err
	}

	stores := make([]annotation.Store, 0, len(cfg.Annotations))
	for _, path := range cfg.Annotations {
		s, err := annotation.Load(path)
		if err != nil {
			return err
		}
		logger.WithFields(log.Fields{"path": path, "files": len(s)}).Info("loaded annotations")
		stores = append(stores, s)
	}

	logger.WithFields(log.Fields{
		"profile":   alignCfg.Profile.String(),
		"output":    alignCfg.OutputSize,
		"transform": alignCfg.TransformSize,
		"upscaler":  cfg.Upscaler,
		"dst":       cfg.OutputDir,
	}).Info("building dataset")

	b := &dataset.Builder{
		Aligner:    aligner,
		Stores:     stores,
		ImageDir:   cfg.ImageDir,
		OutputDir:  cfg.OutputDir,
		Ext:        cfg.Ext,
		StartIndex: cfg.StartIndex,
		Logger:     logger,
	}
	stats, err := b.Run(ctx)
	logger.WithFields(log.Fields{
		"run":   stats.RunID,
		"read":  stats.Timing.Read.String(),
		"align": stats.Timing.Align.String(),
		"write": stats.Timing.Write.String(),
		"next":  stats.Next,
	}).Debug("timing")
	return err
}

// newUpscaler builds the configured upscaler, starting ONNX Runtime for
// the model-backed kinds.
func newUpscaler(cfg config.Config) (enhancer.Upscaler, error) {
	kind := enhancer.Kind(cfg.Upscaler)
	if kind == enhancer.KindBicubic {
		return enhancer.NewInterpolator(2), nil
	}

	if err := inference.Initialize(cfg.ORTLibrary); err != nil {
		return nil, err
	}
	opts := inference.Options{CoreML: cfg.CoreML}

	var (
		up  enhancer.Upscaler
		err error
	)
	switch kind {
	case enhancer.KindWaifu2x:
		up, err = enhancer.NewWaifu2x(cfg.ModelPath, opts)
	case enhancer.KindRealESRGAN:
		up, err = enhancer.NewRealESRGAN(cfg.ModelPath, opts)
	default:
		err = fmt.Errorf("unknown upscaler %q", cfg.Upscaler)
	}
	if err != nil {
		inference.Shutdown()
		return nil, err
	}
	return &shutdownUpscaler{Upscaler: up}, nil
}

// shutdownUpscaler tears down ONNX Runtime after its session.
type shutdownUpscaler struct {
	enhancer.Upscaler
}

func (s *shutdownUpscaler) Close() error {
	return errors.Join(s.Upscaler.Close(), inference.Shutdown())
}
