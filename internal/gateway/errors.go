package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrServiceUnreachable covers transport failures and an unusable ledger listing.
	ErrServiceUnreachable = errors.New("service unreachable")
	// ErrValidationRejected matches every 4xx answer.
	ErrValidationRejected = errors.New("request rejected by service")
	// ErrInvalidTicker is returned when the prediction endpoint refuses a ticker.
	ErrInvalidTicker = errors.New("invalid ticker")
	// ErrExecutionRejected is returned when the backend refuses to execute a trade.
	ErrExecutionRejected = errors.New("trade execution rejected")
	// ErrPersistenceRejected is returned when the backend refuses to record a trade.
	ErrPersistenceRejected = errors.New("transaction persistence rejected")
)

// RemoteError is a non-2xx answer from the service.
type RemoteError struct {
	Op         string
	StatusCode int
	Detail     string
	kind       error
}

func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Detail, e.StatusCode)
}

// Unwrap exposes the operation's failure kind and, for 4xx, ErrValidationRejected.
func (e *RemoteError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		errs = append(errs, ErrValidationRejected)
	}
	return errs
}

// DetailOf extracts the service-provided message from err, if any.
func DetailOf(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Detail
	}
	return ""
}

func newRemoteError(op string, kind error, status int, payload []byte, fallback string) *RemoteError {
	detail := parseDetail(payload)
	if detail == "" {
		detail = fallback
	}
	return &RemoteError{Op: op, StatusCode: status, Detail: detail, kind: kind}
}

type errorResponse struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

// parseDetail reads {"detail": "..."} and falls back to the compact raw
// detail (FastAPI validation errors carry a list) or "message".
func parseDetail(payload []byte) string {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err != nil {
		return ""
	}
	if len(apiErr.Detail) > 0 && !bytes.Equal(apiErr.Detail, []byte("null")) {
		var text string
		if err := json.Unmarshal(apiErr.Detail, &text); err == nil {
			return strings.TrimSpace(text)
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, apiErr.Detail); err == nil {
			return compact.String()
		}
	}
	return strings.TrimSpace(apiErr.Message)
}
