package relay

import (
	"encoding/json"
	"net/http"
)

// Error messages returned to callers.
const (
	MsgBadRequest       = "Bad Request: Missing modelName or body"
	MsgConfigError      = "Server Configuration Error: API Keys not set"
	MsgAllKeysLimited   = "All API keys are rate limited."
	MsgInternalError    = "Internal Server Error"
	MsgMethodNotAllowed = "Method Not Allowed"

	jsonContentType = "application/json; charset=utf-8"
)

// Request is the caller-supplied envelope. Body is forwarded without interpretation.
type Request struct {
	ModelName string
	Body      json.RawMessage
}

// Result is the terminal outcome of one Forward call.
type Result struct {
	StatusCode  int
	ContentType string
	Body        []byte
	// Attempts is the number of upstream calls made.
	Attempts int
	// Exhausted reports that every attempt was rate limited.
	Exhausted bool
}

// ErrorBody is the JSON shape of locally synthesized errors.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Attempt describes a single upstream call.
type Attempt struct {
	Model      string
	KeyIndex   int
	Number     int
	StatusCode int
	Err        error
}

// Observer receives attempt events. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveAttempt(a Attempt)
	ObserveExhausted(model string)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(Attempt)  {}
func (nopObserver) ObserveExhausted(string) {}

// ErrorResult builds a Result carrying a synthesized JSON error.
func ErrorResult(status int, message, details string) Result {
	body, _ := json.Marshal(ErrorBody{Error: message, Details: details})
	return Result{StatusCode: status, ContentType: jsonContentType, Body: body}
}

func badRequestResult() Result {
	return ErrorResult(http.StatusBadRequest, MsgBadRequest, "")
}

func configErrorResult() Result {
	return ErrorResult(http.StatusInternalServerError, MsgConfigError, "")
}

func exhaustedResult() Result {
	res := ErrorResult(http.StatusTooManyRequests, MsgAllKeysLimited, "")
	res.Exhausted = true
	return res
}
