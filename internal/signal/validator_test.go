package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpcontrol/internal/models"
)

func TestValidate(t *testing.T) {
	t.Run("Buy Opens Long", func(t *testing.T) {
		intent, err := Validate(1, []byte(`{"action":"buy","contracts":33,"symbol":"SOL-PERP"}`))
		require.NoError(t, err)
		assert.Equal(t, models.ActionOpen, intent.Action)
		assert.Equal(t, models.DirectionLong, intent.Direction)
		assert.Equal(t, 33.0, intent.Percent)
		assert.Equal(t, "SOL-PERP", intent.Symbol)
		assert.NotEmpty(t, intent.SignalHash)
	})

	t.Run("Sell Opens Short", func(t *testing.T) {
		intent, err := Validate(1, []byte(`{"action":"sell","contracts":50,"symbol":"SOL-PERP"}`))
		require.NoError(t, err)
		assert.Equal(t, models.ActionOpen, intent.Action)
		assert.Equal(t, models.DirectionShort, intent.Direction)
	})

	t.Run("Zero Size Means Close Regardless Of Action", func(t *testing.T) {
		for _, action := range []string{"buy", "sell", "close"} {
			intent, err := Validate(1, []byte(`{"action":"`+action+`","contracts":0,"symbol":"SOL-PERP"}`))
			require.NoError(t, err, action)
			assert.Equal(t, models.ActionClose, intent.Action, action)
		}
	})

	t.Run("Close Aliases", func(t *testing.T) {
		for _, action := range []string{"close", "exit", "flat"} {
			intent, err := Validate(1, []byte(`{"action":"`+action+`","contracts":100,"symbol":"SOL-PERP"}`))
			require.NoError(t, err, action)
			assert.Equal(t, models.ActionClose, intent.Action, action)
		}
	})

	t.Run("String Typed Size Is Coerced", func(t *testing.T) {
		intent, err := Validate(1, []byte(`{"action":"buy","contracts":"33.5","symbol":"SOL-PERP"}`))
		require.NoError(t, err)
		assert.Equal(t, 33.5, intent.Percent)
	})

	t.Run("Position Size Field Accepted When Contracts Missing", func(t *testing.T) {
		intent, err := Validate(1, []byte(`{"action":"buy","position_size":25,"symbol":"SOL-PERP"}`))
		require.NoError(t, err)
		assert.Equal(t, 25.0, intent.Percent)
	})

	t.Run("Symbol Is Uppercased", func(t *testing.T) {
		intent, err := Validate(1, []byte(`{"action":"buy","contracts":10,"symbol":"sol-perp"}`))
		require.NoError(t, err)
		assert.Equal(t, "SOL-PERP", intent.Symbol)
	})

	t.Run("Rejections", func(t *testing.T) {
		cases := []struct {
			name  string
			body  string
			field string
		}{
			{"Not JSON", `buy 33 SOL`, "body"},
			{"Missing Action", `{"contracts":33,"symbol":"SOL-PERP"}`, "action"},
			{"Unknown Action", `{"action":"hold","contracts":33,"symbol":"SOL-PERP"}`, "action"},
			{"Missing Size", `{"action":"buy","symbol":"SOL-PERP"}`, "contracts"},
			{"Negative Size", `{"action":"buy","contracts":-5,"symbol":"SOL-PERP"}`, "contracts"},
			{"Non Numeric Size", `{"action":"buy","contracts":"lots","symbol":"SOL-PERP"}`, "contracts"},
			{"NaN Size", `{"action":"buy","contracts":"NaN","symbol":"SOL-PERP"}`, "contracts"},
			{"Missing Symbol", `{"action":"buy","contracts":33}`, "symbol"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := Validate(1, []byte(tc.body))
				require.Error(t, err)
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tc.field, verr.Field)
			})
		}
	})
}

func TestHash(t *testing.T) {
	t.Run("Key Order Does Not Matter", func(t *testing.T) {
		a := Hash(1, []byte(`{"action":"buy","contracts":33,"symbol":"SOL-PERP"}`))
		b := Hash(1, []byte(`{"symbol":"SOL-PERP","action":"buy","contracts":33}`))
		assert.Equal(t, a, b)
	})

	t.Run("Whitespace Does Not Matter", func(t *testing.T) {
		a := Hash(1, []byte(`{"action":"buy","contracts":33}`))
		b := Hash(1, []byte(`{ "action": "buy", "contracts": 33 }`))
		assert.Equal(t, a, b)
	})

	t.Run("Different Bots Produce Different Hashes", func(t *testing.T) {
		body := []byte(`{"action":"buy","contracts":33,"symbol":"SOL-PERP"}`)
		assert.NotEqual(t, Hash(1, body), Hash(2, body))
	})

	t.Run("Different Payloads Produce Different Hashes", func(t *testing.T) {
		a := Hash(1, []byte(`{"action":"buy","contracts":33}`))
		b := Hash(1, []byte(`{"action":"buy","contracts":34}`))
		assert.NotEqual(t, a, b)
	})
}
