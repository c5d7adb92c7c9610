package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name         string
		cb           *tele.Callback
		key, payload string
	}{
		{"nil", nil, "", ""},
		{"envelope", &tele.Callback{Data: "\faccess_approve|42"}, "access_approve", "42"},
		{"escaped envelope", &tele.Callback{Data: `\faccess_deny|7`}, "access_deny", "7"},
		{"no payload", &tele.Callback{Data: "\fping"}, "ping", ""},
		{"unique set", &tele.Callback{Unique: "access_guest", Data: "9"}, "access_guest", "9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, payload := ParseCallbackData(tc.cb)
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.payload, payload)
		})
	}
}

func TestDataRoundTrip(t *testing.T) {
	key, payload := ParseCallbackData(&tele.Callback{Data: Data("access_approve", "42")})
	assert.Equal(t, "access_approve", key)
	assert.Equal(t, "42", payload)
}

func TestPayloadInt64(t *testing.T) {
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)

	ctx := bot.NewContext(tele.Update{Callback: &tele.Callback{Data: "\faccess_approve| 42 "}})
	id, err := PayloadInt64(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = PayloadInt64(bot.NewContext(tele.Update{Callback: &tele.Callback{Data: "\faccess_deny"}}))
	assert.ErrorIs(t, err, ErrNoPayload)

	_, err = PayloadInt64(bot.NewContext(tele.Update{Callback: &tele.Callback{Data: "\faccess_deny|abc"}}))
	assert.Error(t, err)
}
