package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile("1024")
	require.NoError(t, err)
	assert.Equal(t, Profile1024, p)

	p, err = ParseProfile(" Legacy ")
	require.NoError(t, err)
	assert.Equal(t, ProfileLegacy, p)

	_, err = ParseProfile("512")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProfileConstants_HalfSize(t *testing.T) {
	c := Profile1024.Constants()
	assert.Equal(t, 80.0, c.HalfSize(40, 10))
	assert.Equal(t, 90.0, c.HalfSize(10, 50))

	legacy := ProfileLegacy.Constants()
	assert.InDelta(t, (1.641*40+1.56*50)/2, legacy.HalfSize(40, 50), 1e-12)

	assert.Equal(t, c, Profile(42).Constants())
	assert.Equal(t, "legacy", ProfileLegacy.String())
	assert.Equal(t, "Profile(42)", Profile(42).String())
}
