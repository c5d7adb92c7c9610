package callbacks

import (
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData splits callback data into unique key and payload.
// Telebot encodes button data as "\f<unique>|<payload>"; when a handler is
// bound to the unique itself it has already stripped that envelope and set
// cb.Unique, in which case Data is the bare payload.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	raw = strings.TrimPrefix(raw, `\f`)
	unique, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// CallbackKey returns the unique key of the current callback.
func CallbackKey(c tele.Context) string {
	k, _ := ParseCallbackData(c.Callback())
	return k
}

// CallbackPayload returns the payload of the current callback.
func CallbackPayload(c tele.Context) string {
	_, p := ParseCallbackData(c.Callback())
	return p
}

// Data encodes unique and payload the way telebot buttons do.
func Data(unique, payload string) string {
	if payload == "" {
		return "\f" + unique
	}
	return "\f" + unique + "|" + payload
}

// ErrNoPayload is returned when a callback carries no payload.
var ErrNoPayload = errors.New("callback has no payload")

// PayloadInt64 parses the payload of the current callback as an int64 id.
func PayloadInt64(c tele.Context) (int64, error) {
	raw := strings.TrimSpace(CallbackPayload(c))
	if raw == "" {
		return 0, ErrNoPayload
	}
	return strconv.ParseInt(raw, 10, 64)
}
