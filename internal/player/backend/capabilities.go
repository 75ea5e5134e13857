package backend

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// capabilityCache avoids re-reading /proc/asound on every enumeration call
// (spec §4.6 notes that would be wasteful); entries expire quickly since
// hardware can be hot-plugged.
var capabilityCache = cache.New(30*time.Second, time.Minute)

var channelsRegexp = regexp.MustCompile(`(?i)channels:\s*(\d+)`)
var rateRegexp = regexp.MustCompile(`(?i)rates?:\s*([\d,\s]+)`)

// ProbeALSACapabilities reads /proc/asound/cardN/... for the device named
// by cardPath and returns its parsed capabilities, tagged Alsa. Falls back
// to a conservative default when the proc files are unavailable (e.g. in
// containers or on non-Linux hosts), which is the common case in CI and on
// the Mock backend's host.
func ProbeALSACapabilities(cardPath string) Capabilities {
	if cached, ok := capabilityCache.Get(cardPath); ok {
		return cached.(Capabilities)
	}

	caps := Capabilities{MaxChannels: 2, SupportedRates: []int{44100, 48000}, Tag: TagAlsa}

	for _, candidate := range []string{
		filepath.Join(cardPath, "codec#0"),
		filepath.Join(cardPath, "stream0"),
	} {
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		text := string(data)
		if m := channelsRegexp.FindStringSubmatch(text); len(m) == 2 {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				caps.MaxChannels = n
			}
		}
		if m := rateRegexp.FindStringSubmatch(text); len(m) == 2 {
			rates := parseRateList(m[1])
			if len(rates) > 0 {
				caps.SupportedRates = rates
			}
		}
		break
	}

	capabilityCache.Set(cardPath, caps, cache.DefaultExpiration)
	return caps
}

// PulseMaxCapabilities returns the conservative upper bound PulseAudio
// advertises when the mixer's own negotiated format can't be read
// directly, tagged PulseAudioMax so the UI can explain the number (spec
// §4.6).
func PulseMaxCapabilities() Capabilities {
	return Capabilities{
		MaxChannels:    8,
		SupportedRates: []int{44100, 48000, 88200, 96000},
		Tag:            TagPulseAudioMax,
	}
}

func parseRateList(raw string) []int {
	var rates []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			rates = append(rates, n)
		}
	}
	return rates
}
