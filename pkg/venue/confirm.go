package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Confirmation statuses for venue transactions.
const (
	TxConfirmed = "confirmed"
	TxPending   = "pending"
	TxFailed    = "failed"
	TxNotFound  = "not_found"
)

// Confirmer checks venue transaction signatures against the chain. The
// reconciler uses it to resolve timed-out executions whose outcome is
// ambiguous.
type Confirmer struct {
	rpc *rpc.Client
}

// NewConfirmer creates a Confirmer against the given RPC endpoint.
func NewConfirmer(endpoint string) *Confirmer {
	return &Confirmer{rpc: rpc.New(endpoint)}
}

// CheckSignatureStatus returns the chain status for a transaction signature.
func (c *Confirmer) CheckSignatureStatus(ctx context.Context, signature string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return "", fmt.Errorf("invalid signature format: %w", err)
	}

	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return "", fmt.Errorf("failed to get signature status: %w", err)
	}

	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return TxNotFound, nil
	}

	status := res.Value[0]
	if status.Err != nil {
		errJSON, _ := json.Marshal(status.Err)
		return TxFailed, fmt.Errorf("transaction failed: %s", string(errJSON))
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return TxConfirmed, nil
	default:
		return TxPending, nil
	}
}
