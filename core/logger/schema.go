package logger

import "strings"

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

var allowedStatus = map[string]struct{}{
	"ok":           {},
	"fail":         {},
	"skip":         {},
	"retry":        {},
	"rate_limited": {},
	"busy":         {},
	"denied":       {},
	"cancelled":    {},
	"timeout":      {},
}

// allowedOutcome mirrors the pipeline outcomes reported by handlers.
var allowedOutcome = map[string]struct{}{
	"ok":               {},
	"fail":             {},
	"reset":            {},
	"rejected_chat":    {},
	"rate_limited":     {},
	"unauthorized":     {},
	"lock_timeout":     {},
	"invalid_input":    {},
	"rendered":         {},
	"render_failed":    {},
	"unexpected_state": {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// normalizeEnum lowercases v and reports whether it belongs to the allowed set.
func normalizeEnum(v string, allowed map[string]struct{}) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "", false
	}
	_, ok := allowed[v]
	return v, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"cb_key",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"transport",
	"route_num",
	"route",
	"garage_number",
	"route_manual",
	"role",
	"artifacts",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"attempts",
	"swept",
	"remaining",
}
