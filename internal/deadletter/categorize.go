package deadletter

import (
	"strings"
)

// Category is a coarse classification of a failure, derived from the
// error text. Best-effort heuristic, not authoritative.
type Category string

const (
	CategoryNetwork   Category = "NETWORK"
	CategoryAuth      Category = "AUTH"
	CategoryRateLimit Category = "RATE_LIMIT"
	CategoryServer    Category = "SERVER"
	CategoryUnknown   Category = "UNKNOWN"
)

var networkMarkers = []string{
	"econnrefused",
	"connection refused",
	"connection reset",
	"etimedout",
	"timeout",
	"enotfound",
	"no such host",
	"network is unreachable",
	"dns",
}

var authMarkers = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
}

var rateLimitMarkers = []string{
	"429",
	"rate limit",
	"too many requests",
}

var serverMarkers = []string{
	"500",
	"502",
	"503",
	"504",
	"internal server error",
	"bad gateway",
	"service unavailable",
}

// Categorize maps free-text error messages to a Category by
// case-insensitive substring matching.
func Categorize(errText string) Category {
	text := strings.ToLower(errText)

	for _, m := range networkMarkers {
		if strings.Contains(text, m) {
			return CategoryNetwork
		}
	}
	for _, m := range authMarkers {
		if strings.Contains(text, m) {
			return CategoryAuth
		}
	}
	for _, m := range rateLimitMarkers {
		if strings.Contains(text, m) {
			return CategoryRateLimit
		}
	}
	for _, m := range serverMarkers {
		if strings.Contains(text, m) {
			return CategoryServer
		}
	}

	return CategoryUnknown
}
