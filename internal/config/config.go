package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/dudu/facealign/internal/align"
)

// ErrInvalid is returned when flags or environment fail validation.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FACEALIGN_"

// Config holds the dataset build settings.
type Config struct {
	Annotations   []string `validate:"min=1,dive,required"`
	ImageDir      string   `validate:"required"`
	OutputDir     string   `validate:"required"`
	Ext           string   `validate:"oneof=png jpg"`
	StartIndex    int      `validate:"gte=0"`
	Profile       string   `validate:"oneof=1024 legacy"`
	OutputSize    int      `validate:"gt=0"`
	TransformSize int      `validate:"gtefield=OutputSize"`
	Padding       bool
	Upscaler      string `validate:"oneof=waifu2x realesrgan bicubic"`
	ModelPath     string `validate:"required_unless=Upscaler bicubic"`
	ORTLibrary    string
	CoreML        bool
	LogLevel      string `validate:"oneof=trace debug info warn error"`
	LogFile       string
}

// Load reads an optional .env file, then parses args with defaults taken
// from FACEALIGN_* environment variables, then validates the result.
func Load(args []string, stderr io.Writer) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	var (
		cfg         Config
		annotations string
	)

	fsFlags := flag.NewFlagSet("facealign", flag.ContinueOnError)
	fsFlags.SetOutput(stderr)

	fsFlags.StringVar(&annotations, "annotations", env("ANNOTATIONS", "save_1.json,save.json"), "Comma-separated landmark annotation files, processed in order")
	fsFlags.StringVar(&cfg.ImageDir, "images", env("IMAGE_DIR", "images"), "Directory of source images")
	fsFlags.StringVar(&cfg.OutputDir, "out", env("OUTPUT_DIR", ""), "Destination directory (default depends on profile)")
	fsFlags.StringVar(&cfg.Ext, "ext", env("EXT", "png"), "Output image format: png or jpg")
	fsFlags.IntVar(&cfg.StartIndex, "start", envInt("START_INDEX", 0), "Index of the first output file")
	fsFlags.StringVar(&cfg.Profile, "profile", env("PROFILE", "1024"), "Framing profile: 1024 or legacy")
	fsFlags.IntVar(&cfg.OutputSize, "size", envInt("OUTPUT_SIZE", 0), "Output side length (default depends on profile)")
	fsFlags.IntVar(&cfg.TransformSize, "transform-size", envInt("TRANSFORM_SIZE", 0), "Resample side length (default depends on profile)")
	fsFlags.BoolVar(&cfg.Padding, "padding", envBool("PADDING", true), "Reflect-pad faces that extend past the image")
	fsFlags.StringVar(&cfg.Upscaler, "upscaler", env("UPSCALER", "waifu2x"), "Upscaler: waifu2x, realesrgan or bicubic")
	fsFlags.StringVar(&cfg.ModelPath, "model", env("MODEL", "models/noise1_scale2.0x_model.onnx"), "Upscaler ONNX model")
	fsFlags.StringVar(&cfg.ORTLibrary, "ort-lib", env("ORT_LIBRARY", ""), "ONNX Runtime shared library path")
	fsFlags.BoolVar(&cfg.CoreML, "coreml", envBool("COREML", false), "Use the CoreML execution provider")
	fsFlags.StringVar(&cfg.LogLevel, "log-level", env("LOG_LEVEL", "info"), "Log level")
	fsFlags.StringVar(&cfg.LogFile, "log-file", env("LOG_FILE", ""), "Rotating log file (empty disables)")

	if err := fsFlags.Parse(args); err != nil {
		return Config{}, err
	}

	for _, a := range strings.Split(annotations, ",") {
		if a = strings.TrimSpace(a); a != "" {
			cfg.Annotations = append(cfg.Annotations, a)
		}
	}
	cfg.applyProfileDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyProfileDefaults fills sizes and the output directory left unset.
func (c *Config) applyProfileDefaults() {
	p, err := align.ParseProfile(c.Profile)
	if err != nil {
		return
	}
	def := align.DefaultConfig(p)
	if c.OutputSize == 0 {
		c.OutputSize = def.OutputSize
	}
	if c.TransformSize == 0 {
		c.TransformSize = def.TransformSize
	}
	if c.OutputDir == "" {
		c.OutputDir = fmt.Sprintf("realign%dx%d", def.TransformSize, def.TransformSize)
		if p == align.ProfileLegacy {
			c.OutputDir = fmt.Sprintf("realign%dx%d", def.OutputSize, def.OutputSize)
		}
	}
}

// Validate checks struct tags and returns one error naming every failing
// field.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// AlignConfig converts the validated settings to aligner settings.
func (c Config) AlignConfig() (align.Config, error) {
	p, err := align.ParseProfile(c.Profile)
	if err != nil {
		return align.Config{}, err
	}
	return align.Config{
		OutputSize:    c.OutputSize,
		TransformSize: c.TransformSize,
		EnablePadding: c.Padding,
		Profile:       p,
	}, nil
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(env(key, "")); err == nil {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(env(key, "")); err == nil {
		return v
	}
	return def
}
