package game

import (
	"strings"
	"time"
)

func normalizedUCI(move string) string {
	return strings.ToLower(strings.TrimSpace(move))
}

// now is indirected for tests that pin timestamps.
var now = time.Now
