package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

// Client talks to the venue gateway over HTTP. Every command is signed with
// the bot's subaccount authority key and bounded by a hard timeout; a timed
// out call is reported as TimeoutError, never as a confirmed failure.
type Client struct {
	baseURL string
	http    *http.Client
	keys    *KeyManager
}

// NewClient creates a gateway client with the given request timeout bound.
func NewClient(baseURL string, keys *KeyManager, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		baseURL: baseURL,
		keys:    keys,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// InitializeSubaccount creates a new subaccount on the venue.
func (c *Client) InitializeSubaccount(ctx context.Context, encryptedKey string, subaccountID uint16) (*OrderResult, error) {
	body := map[string]interface{}{"subaccount_id": subaccountID}
	var res OrderResult
	if err := c.signedPost(ctx, "initializeSubaccount", "/v1/subaccounts", encryptedKey, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Deposit moves collateral into a subaccount.
func (c *Client) Deposit(ctx context.Context, encryptedKey string, subaccountID uint16, amount float64) (*OrderResult, error) {
	body := map[string]interface{}{"subaccount_id": subaccountID, "amount": amount}
	var res OrderResult
	if err := c.signedPost(ctx, "deposit", "/v1/deposit", encryptedKey, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PlaceOrder places a perp order on the requested execution path.
func (c *Client) PlaceOrder(ctx context.Context, encryptedKey string, req OrderRequest) (*OrderResult, error) {
	var res OrderResult
	if err := c.signedPost(ctx, "placeOrder", "/v1/orders", encryptedKey, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SettlePnl settles realized pnl for a subaccount's market.
func (c *Client) SettlePnl(ctx context.Context, encryptedKey string, subaccountID uint16, marketIndex int) (*OrderResult, error) {
	body := map[string]interface{}{"subaccount_id": subaccountID, "market_index": marketIndex}
	var res OrderResult
	if err := c.signedPost(ctx, "settle", "/v1/settle", encryptedKey, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteSubaccount removes an empty subaccount, reclaiming its rent.
func (c *Client) DeleteSubaccount(ctx context.Context, encryptedKey string, subaccountID uint16) (*OrderResult, error) {
	body := map[string]interface{}{"subaccount_id": subaccountID}
	var res OrderResult
	if err := c.signedPost(ctx, "deleteSubaccount", "/v1/subaccounts/delete", encryptedKey, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetSubaccount fetches the venue-authoritative state of one subaccount.
func (c *Client) GetSubaccount(ctx context.Context, authority string, subaccountID uint16) (*SubaccountState, error) {
	endpoint := fmt.Sprintf("%s/v1/subaccounts/%s/%d", c.baseURL, url.PathEscape(authority), subaccountID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Op: "getSubaccount"}
		}
		return nil, fmt.Errorf("venue getSubaccount failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError("getSubaccount", resp)
	}

	var state SubaccountState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode subaccount state: %w", err)
	}
	return &state, nil
}

// signedPost signs the command body with the bot's key, posts it, and decodes
// the result. The decrypted key is zeroed before the HTTP call is made, so it
// never lives longer than the signing itself.
func (c *Client) signedPost(ctx context.Context, op, path, encryptedKey string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s command: %w", op, err)
	}

	privateKey, err := c.keys.DecryptPrivateKey(encryptedKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt signing key: %w", err)
	}
	signature, pubkey, err := SignCommand(privateKey, body)
	ZeroKey(privateKey)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Authority", pubkey)
	httpReq.Header.Set("X-Signature", signature)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			log.WithFields(log.Fields{"op": op, "elapsed": time.Since(start)}).Warn("venue call timed out")
			return &TimeoutError{Op: op}
		}
		return fmt.Errorf("venue %s failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(op, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", op, err)
		}
	}
	return nil
}

func decodeAPIError(op string, resp *http.Response) error {
	apiErr := &APIError{Op: op}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return apiErr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	return false
}
