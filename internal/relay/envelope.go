package relay

import (
	"errors"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON indicates the inbound envelope is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON request body")

// ParseEnvelope extracts the top-level modelName and body fields without decoding the payload.
// Absent fields are left empty; Forward decides whether the request is usable.
// A repeated top-level field resolves to its last occurrence.
func ParseEnvelope(raw []byte) (Request, error) {
	if !gjson.ValidBytes(raw) {
		return Request{}, ErrInvalidJSON
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Request{}, nil
	}

	var req Request
	root.ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "modelName":
			req.ModelName = modelNameOf(value)
		case "body":
			req.Body = []byte(value.Raw)
		}
		return true
	})
	return req, nil
}

// modelNameOf renders scalar model names the way string interpolation would.
// Falsy values, objects and arrays yield "".
func modelNameOf(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		if v.Num == 0 {
			return ""
		}
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case gjson.True:
		return "true"
	default:
		return ""
	}
}

// isEmptyPayload mirrors a falsy check: absent, null, false, 0 and "" are all missing.
func isEmptyPayload(raw []byte) bool {
	if len(raw) == 0 {
		return true
	}
	if !gjson.ValidBytes(raw) {
		return false
	}
	v := gjson.ParseBytes(raw)
	switch v.Type {
	case gjson.Null, gjson.False:
		return true
	case gjson.Number:
		return v.Num == 0
	case gjson.String:
		return v.Str == ""
	default:
		return false
	}
}
