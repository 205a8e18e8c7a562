package render

import (
	"math"
	"strconv"
	"strings"
)

// ParseFPS reads a client-supplied frame rate. Missing or malformed values
// return 0 so NormalizeFPS substitutes the default.
func ParseFPS(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	fps, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return fps
}

// NormalizeFPS applies the default to unusable rates and clamps to max.
func NormalizeFPS(fps, defaultFPS, maxFPS float64) float64 {
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		fps = defaultFPS
	}
	if maxFPS > 0 && fps > maxFPS {
		fps = maxFPS
	}
	return fps
}
