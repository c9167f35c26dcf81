package processor

import (
	"strconv"
	"strings"
)

// detectDeviceType classifies the client device from its user agent, with
// screen width as the tiebreaker for ambiguous agents.
func detectDeviceType(userAgent, screenResolution string) string {
	if userAgent == "" {
		return "desktop"
	}

	ua := strings.ToLower(userAgent)
	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") {
		return "mobile"
	}
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return "tablet"
	}

	if screenResolution != "" {
		parts := strings.SplitN(screenResolution, "x", 2)
		if width, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
			if width < 768 {
				return "mobile"
			}
			if width < 1024 {
				return "tablet"
			}
		}
	}

	return "desktop"
}
