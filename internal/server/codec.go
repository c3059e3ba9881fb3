package server

import (
	"strconv"
	"strings"
	"unicode"
)

// request is one decoded line of the wire protocol. Body keys are
// normalized to snake_case before dispatch.
type request struct {
	ID   *string        `json:"id"`
	Kind string         `json:"kind"`
	Body map[string]any `json:"body"`
}

// Response is the reply envelope. Every field is serialized even when
// unset so clients can rely on the key set.
type Response struct {
	Status    string  `json:"status"`
	Payload   any     `json:"payload"`
	Error     *string `json:"error"`
	Traceback *string `json:"traceback"`
}

// wireResponse is a Response with the echoed request id. The exit frame is
// the only reply sent without one.
type wireResponse struct {
	Response
	ID *string `json:"id"`
}

func okResp(payload any) Response {
	return Response{Status: "ok", Payload: payload}
}

func errResp(msg string) Response {
	return Response{Status: "error", Error: &msg}
}

// snakeCase inserts an underscore before every interior upper-case rune
// and lowers the result: "pageSize" -> "page_size", "ID" -> "i_d".
func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// normalize rewrites map keys to snake_case at every depth of the parsed
// body, descending through objects and arrays.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[snakeCase(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}

// asString renders a body value the way clients mean it: JSON strings
// pass through, numbers are formatted without a trailing fraction.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// intParam reads an optional integer body field. The second return is
// false when the key is absent or not a number.
func intParam(body map[string]any, key string) (int, bool) {
	n, ok := body[key].(float64)
	if !ok {
		return 0, false
	}
	return int(n), true
}
