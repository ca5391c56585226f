package quota

import (
	"regexp"
	"strconv"
	"strings"

	"mediatools/internal/domain"
)

// fallbackHeight is assumed for labels we cannot read.
const fallbackHeight = 720

var namedQualities = map[string]int{
	"4k":     2160,
	"uhd":    2160,
	"2k":     1440,
	"qhd":    1440,
	"fhd":    1080,
	"hd":     720,
	"sd":     480,
	"audio":  0,
	"mp3":    0,
	"m4a":    0,
	"medium": 480,
	"low":    360,
}

var heightPattern = regexp.MustCompile(`^(\d{3,4})p?`)

// QualityHeight maps a quality label such as "1080p60" or "4k" to a
// vertical resolution. Audio-only labels map to 0.
func QualityHeight(label string) int {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return fallbackHeight
	}
	if h, ok := namedQualities[label]; ok {
		return h
	}
	if strings.HasPrefix(label, "audio") {
		return 0
	}
	if m := heightPattern.FindStringSubmatch(label); m != nil {
		if h, err := strconv.Atoi(m[1]); err == nil && h > 0 {
			return h
		}
	}
	return fallbackHeight
}

// ValidateQuality reports whether label fits under maxResolution.
func ValidateQuality(label string, maxResolution int) bool {
	if maxResolution == domain.Unlimited {
		return true
	}
	return QualityHeight(label) <= maxResolution
}
