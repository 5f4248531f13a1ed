package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"perpcontrol/internal/models"
)

// ValidationError names the webhook field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signal field %q: %s", e.Field, e.Reason)
}

// Payload is the raw TradingView alert body. Alert templates send the size
// field inconsistently typed (string or number) and under two names, so both
// are captured as raw JSON and coerced later.
type Payload struct {
	Action       string          `json:"action"`
	Contracts    json.RawMessage `json:"contracts"`
	PositionSize json.RawMessage `json:"position_size"`
	Symbol       string          `json:"symbol"`
	Price        json.RawMessage `json:"price"`
	Comment      string          `json:"comment"`
}

// Validate parses a raw webhook body into a canonical trade intent for the
// given bot. It is a pure transform: no side effects, no persistence.
//
// A size value of exactly zero always means "close the current position",
// overriding the literal buy/sell action.
func Validate(botID uint, body []byte) (*models.TradeIntent, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &ValidationError{Field: "body", Reason: "not valid JSON"}
	}

	action := strings.ToLower(strings.TrimSpace(p.Action))
	if action == "" {
		return nil, &ValidationError{Field: "action", Reason: "missing"}
	}

	sizeRaw := p.Contracts
	sizeField := "contracts"
	if len(sizeRaw) == 0 {
		sizeRaw = p.PositionSize
		sizeField = "position_size"
	}
	if len(sizeRaw) == 0 {
		return nil, &ValidationError{Field: "contracts", Reason: "missing"}
	}

	percent, err := coerceNumber(sizeRaw)
	if err != nil {
		return nil, &ValidationError{Field: sizeField, Reason: err.Error()}
	}
	if percent < 0 {
		return nil, &ValidationError{Field: sizeField, Reason: "must be non-negative"}
	}

	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return nil, &ValidationError{Field: "symbol", Reason: "missing"}
	}

	intent := &models.TradeIntent{
		BotID:      botID,
		Percent:    percent,
		Symbol:     symbol,
		RawPayload: json.RawMessage(body),
		SignalHash: Hash(botID, body),
	}

	// Zero size is the close sentinel, regardless of the stated action.
	if percent == 0 {
		intent.Action = models.ActionClose
		// Direction is informational on a close; keep whatever the alert said.
		intent.Direction = directionFor(action)
		return intent, nil
	}

	switch action {
	case "buy":
		intent.Action = models.ActionOpen
		intent.Direction = models.DirectionLong
	case "sell":
		intent.Action = models.ActionOpen
		intent.Direction = models.DirectionShort
	case "close", "exit", "flat":
		intent.Action = models.ActionClose
		intent.Direction = directionFor(action)
	default:
		return nil, &ValidationError{Field: "action", Reason: fmt.Sprintf("unrecognized action %q", action)}
	}

	return intent, nil
}

func directionFor(action string) string {
	if action == "sell" {
		return models.DirectionShort
	}
	return models.DirectionLong
}

// coerceNumber accepts a JSON number or a numeric string and returns a
// finite float64.
func coerceNumber(raw json.RawMessage) (float64, error) {
	s := strings.TrimSpace(string(raw))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return 0, fmt.Errorf("not a number")
		}
		s = strings.TrimSpace(unquoted)
	}
	if s == "" || s == "null" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite")
	}
	return v, nil
}

// Hash computes the dedup hash over (bot id, normalized payload). The payload
// is normalized by re-marshaling with sorted keys so that key order and
// whitespace differences between deliveries of the same alert do not defeat
// deduplication.
func Hash(botID uint, body []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:", botID)
	h.Write(normalize(body))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(body []byte) []byte {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		// Not an object; hash the raw bytes as-is.
		return body
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		b.Write([]byte(strings.TrimSpace(string(m[k]))))
	}
	b.WriteByte('}')
	return []byte(b.String())
}
