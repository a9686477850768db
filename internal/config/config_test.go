package config

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facealign/internal/align"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"save_1.json", "save.json"}, cfg.Annotations)
	assert.Equal(t, "images", cfg.ImageDir)
	assert.Equal(t, "realign1024x1024", cfg.OutputDir)
	assert.Equal(t, 256, cfg.OutputSize)
	assert.Equal(t, 1024, cfg.TransformSize)
	assert.True(t, cfg.Padding)
	assert.Equal(t, "waifu2x", cfg.Upscaler)

	ac, err := cfg.AlignConfig()
	require.NoError(t, err)
	assert.Equal(t, align.DefaultConfig(align.Profile1024), ac)
}

func TestLoad_LegacyProfile(t *testing.T) {
	cfg, err := Load([]string{"-profile", "legacy", "-annotations", " a.json , ,b.json"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.json", "b.json"}, cfg.Annotations)
	assert.Equal(t, "realign128x128", cfg.OutputDir)
	assert.Equal(t, 128, cfg.OutputSize)
	assert.Equal(t, 512, cfg.TransformSize)

	ac, err := cfg.AlignConfig()
	require.NoError(t, err)
	assert.Equal(t, align.ProfileLegacy, ac.Profile)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FACEALIGN_OUTPUT_SIZE", "64")
	t.Setenv("FACEALIGN_PADDING", "false")
	t.Setenv("FACEALIGN_UPSCALER", "bicubic")
	t.Setenv("FACEALIGN_MODEL", "")

	cfg, err := Load([]string{"-out", "aligned"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.OutputSize)
	assert.Equal(t, 1024, cfg.TransformSize)
	assert.False(t, cfg.Padding)
	assert.Equal(t, "aligned", cfg.OutputDir)
	assert.Empty(t, cfg.ModelPath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "output larger than transform", args: []string{"-size", "2048"}},
		{name: "unknown profile", args: []string{"-profile", "square"}},
		{name: "model required", args: []string{"-upscaler", "waifu2x", "-model", ""}},
		{name: "unknown upscaler", args: []string{"-upscaler", "nearest"}},
		{name: "no annotations", args: []string{"-annotations", ","}},
		{name: "negative start", args: []string{"-start", "-1"}},
		{name: "bad extension", args: []string{"-ext", "gif"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args, io.Discard)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_BadFlag(t *testing.T) {
	_, err := Load([]string{"-no-such-flag"}, io.Discard)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}
