package executor

import (
	"strings"
)

// Classification buckets for venue execution errors.
type Classification string

const (
	// ClassRetry marks transient infrastructure errors worth repeating as-is.
	ClassRetry Classification = "retry"
	// ClassFallback marks venue liquidity/auction failures that should be
	// re-attempted through a different execution path, not blindly repeated.
	ClassFallback Classification = "fallback"
	// ClassPermanent marks errors that must never be retried and surface to
	// the user immediately.
	ClassPermanent Classification = "permanent"
)

var permanentPatterns = []string{
	"insufficient collateral",
	"insufficient funds",
	"margin requirement",
	"max leverage",
	"reduce only",
	"invalid order",
	"order validation",
	"signature verification",
	"unauthorized",
	"market not found",
	"market paused",
	"account not found",
}

var fallbackPatterns = []string{
	"no liquidity",
	"insufficient liquidity",
	"auction expired",
	"auction not complete",
	"auction duration",
	"no maker",
	"oracle price band",
	"price impact",
}

var retryPatterns = []string{
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"429",
	"connection reset",
	"connection refused",
	"broken pipe",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"502",
	"503",
	"504",
	"blockhash not found",
	"node is behind",
	"temporarily",
}

// Classify maps a raw execution error to a retry/fallback/permanent bucket.
// Patterns are evaluated permanent-first, then fallback, then retry. An
// unrecognized error defaults to fallback: assume it might succeed through
// an alternate path rather than hammering a broken one.
func Classify(err error) Classification {
	if err == nil {
		return ClassRetry
	}
	msg := strings.ToLower(err.Error())

	for _, p := range permanentPatterns {
		if strings.Contains(msg, p) {
			return ClassPermanent
		}
	}
	for _, p := range fallbackPatterns {
		if strings.Contains(msg, p) {
			return ClassFallback
		}
	}
	for _, p := range retryPatterns {
		if strings.Contains(msg, p) {
			return ClassRetry
		}
	}
	return ClassFallback
}
