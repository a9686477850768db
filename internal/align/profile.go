package align

import (
	"fmt"
	"math"
	"strings"
)

// Profile selects the framing constants used to size and centre the crop.
type Profile int

const (
	// Profile1024 is the tighter framing used for the 1024 dataset.
	Profile1024 Profile = iota
	// ProfileLegacy is the earlier framing constant set.
	ProfileLegacy
)

// ProfileConstants are the named framing multipliers of a Profile.
type ProfileConstants struct {
	EyeToEye     float64 // multiplier on |eye_to_eye|
	EyeToMouth   float64 // multiplier on |eye_to_mouth|
	CenterOffset float64 // fraction of eye_to_mouth added to the eye midpoint
	UseMax       bool    // combine the scaled lengths with max instead of their mean
}

var profiles = map[Profile]ProfileConstants{
	Profile1024:   {EyeToEye: 2.0, EyeToMouth: 1.8, CenterOffset: 0.1, UseMax: true},
	ProfileLegacy: {EyeToEye: 1.641, EyeToMouth: 1.56, CenterOffset: 0.317},
}

// Constants returns the framing constants for p. Unknown profiles fall back
// to Profile1024.
func (p Profile) Constants() ProfileConstants {
	if c, ok := profiles[p]; ok {
		return c
	}
	return profiles[Profile1024]
}

// HalfSize returns |x|, the half side of the crop square, for the given
// vector lengths.
func (c ProfileConstants) HalfSize(eyeToEye, eyeToMouth float64) float64 {
	a := eyeToEye * c.EyeToEye
	b := eyeToMouth * c.EyeToMouth
	if c.UseMax {
		return math.Max(a, b)
	}
	return (a + b) / 2
}

func (p Profile) String() string {
	switch p {
	case Profile1024:
		return "1024"
	case ProfileLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("Profile(%d)", int(p))
	}
}

// ParseProfile maps "1024" or "legacy" to a Profile.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1024", "":
		return Profile1024, nil
	case "legacy":
		return ProfileLegacy, nil
	}
	return 0, fmt.Errorf("%w: unknown profile %q", ErrInvalidConfig, s)
}
