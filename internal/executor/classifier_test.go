package executor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Classification
	}{
		{"Insufficient Collateral", errors.New("venue order failed: InsufficientCollateral: insufficient collateral for order"), ClassPermanent},
		{"Margin Requirement", errors.New("margin requirement not met"), ClassPermanent},
		{"Reduce Only Violation", errors.New("order rejected: reduce only order would increase position"), ClassPermanent},
		{"Bad Signature", errors.New("signature verification failure"), ClassPermanent},
		{"Market Paused", errors.New("market paused for maintenance"), ClassPermanent},

		{"No Liquidity", errors.New("auction failed: insufficient liquidity"), ClassFallback},
		{"Auction Expired", errors.New("auction expired before fill"), ClassFallback},
		{"No Maker", errors.New("no maker available for auction"), ClassFallback},
		{"Oracle Band", errors.New("price outside oracle price band"), ClassFallback},

		{"Timeout", errors.New("request timed out"), ClassRetry},
		{"Rate Limited", errors.New("HTTP 429 too many requests"), ClassRetry},
		{"Connection Reset", errors.New("read tcp: connection reset by peer"), ClassRetry},
		{"Service Unavailable", errors.New("503 service unavailable"), ClassRetry},
		{"Stale Blockhash", errors.New("blockhash not found"), ClassRetry},

		// An unrecognized error might succeed through the other execution
		// path; it must not be treated as permanent.
		{"Unrecognized Defaults To Fallback", errors.New("something nobody has seen before"), ClassFallback},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassifyPermanentWinsOverRetry(t *testing.T) {
	// A permanent cause wrapped in transport noise must stay permanent.
	err := fmt.Errorf("retrying after timeout: %w", errors.New("insufficient collateral"))
	assert.Equal(t, ClassPermanent, Classify(err))
}
