// pkg/apierr/apierr.go
package apierr

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Stable error codes returned to callers. Internal causes are logged, never
// serialized.
const (
	CodeAuthInvalid        = "AUTH_INVALID"
	CodeForbidden          = "FORBIDDEN"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeBadGateway         = "BAD_GATEWAY"
	CodeNotConnected       = "NOT_CONNECTED"
	CodeCredentialExpired  = "CREDENTIAL_EXPIRED"
	CodeUnknownService     = "UNKNOWN_SERVICE"
	CodeBadRequest         = "BAD_REQUEST"
	CodeInternal           = "INTERNAL"
)

// Envelope is the uniform response shape for every gateway-owned endpoint.
type Envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp string     `json:"timestamp"`
}

type ErrorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// E is an API error carrying its HTTP status and stable code.
type E struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *E) Error() string { return e.Code + ": " + e.Message }

func New(status int, code, message string) *E {
	return &E{Status: status, Code: code, Message: message}
}

// Common constructors. Messages are deliberately generic for 401/5xx.

func AuthInvalid() *E {
	return New(http.StatusUnauthorized, CodeAuthInvalid, "invalid credentials")
}

func Forbidden(msg string) *E {
	return New(http.StatusForbidden, CodeForbidden, msg)
}

func RateLimited(retryAfter time.Duration) *E {
	e := New(http.StatusTooManyRequests, CodeRateLimited, "too many requests")
	e.RetryAfter = retryAfter
	return e
}

func ServiceUnavailable() *E {
	return New(http.StatusServiceUnavailable, CodeServiceUnavailable, "service temporarily unavailable")
}

func BadGateway() *E {
	return New(http.StatusBadGateway, CodeBadGateway, "upstream error")
}

func NotConnected(provider string) *E {
	return New(http.StatusConflict, CodeNotConnected, "no "+provider+" account connected; connect your account and retry")
}

func CredentialExpired(provider string) *E {
	return New(http.StatusConflict, CodeCredentialExpired, provider+" connection expired; reconnect your account")
}

func UnknownService(name string) *E {
	return New(http.StatusNotFound, CodeUnknownService, "unknown service "+name)
}

func BadRequest(msg string) *E {
	return New(http.StatusBadRequest, CodeBadRequest, msg)
}

func Internal() *E {
	return New(http.StatusInternalServerError, CodeInternal, "internal error")
}

// WriteJSON writes the success envelope.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// WriteError writes the error envelope. Unrecognized errors collapse to a
// generic 500.
func WriteError(w http.ResponseWriter, err error) {
	e, ok := err.(*E)
	if !ok {
		e = Internal()
	}
	w.Header().Set("Content-Type", "application/json")
	if e.RetryAfter > 0 {
		secs := int(e.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.WriteHeader(e.Status)
	body := &ErrorBody{Code: e.Code, Message: e.Message}
	if e.RetryAfter > 0 {
		body.RetryAfterSeconds = int(e.RetryAfter.Seconds())
	}
	_ = json.NewEncoder(w).Encode(Envelope{
		Success:   false,
		Error:     body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
