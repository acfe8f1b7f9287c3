package ollama

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/resilience"
)

// HTTPStatusError is a non-2xx reply from Ollama or the web search API.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// modelMissing reports Ollama's 404 for a model that was never pulled.
func (e *HTTPStatusError) modelMissing() bool {
	return e.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(e.Body), "not found")
}

func (e *HTTPStatusError) rejectedCredentials() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

var (
	transient = resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	permanent = resilience.ErrorClassification{RecordFailure: true}
	ignored   = resilience.ErrorClassification{}
)

func classifyOllamaError(err error) resilience.ErrorClassification {
	switch {
	case err == nil, resilience.IsContextDone(err):
		return ignored
	case resilience.IsCircuitOpen(err):
		return transient
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.rejectedCredentials(), statusErr.modelMissing():
			return ignored
		case isRetryableHTTPStatus(statusErr.StatusCode):
			return transient
		default:
			return ignored
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return transient
	}
	return permanent
}

// wrapTemporaryIfNeeded maps adapter failures onto domain error kinds:
// transient ones to ErrTemporary, rejected keys to ErrUnauthorized and a
// missing model to ErrGeneration.
func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) || resilience.IsContextDone(err) {
		return err
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.rejectedCredentials():
			return domain.WrapError(domain.ErrUnauthorized, operation, err)
		case statusErr.modelMissing():
			return domain.WrapError(domain.ErrGeneration, operation, err)
		}
	}

	if classifyOllamaError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
