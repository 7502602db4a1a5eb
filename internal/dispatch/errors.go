package dispatch

import (
	"context"
	"errors"
	"net/http"

	"github.com/aidis-io/aidis/internal/catalog"
	"github.com/aidis-io/aidis/internal/embeddings"
	"github.com/aidis-io/aidis/internal/session"
	"github.com/aidis-io/aidis/internal/storage"
	"github.com/aidis-io/aidis/internal/validate"
)

// ErrInternal wraps uncaught failures. Callers see a generic message;
// detail stays in the logs.
var ErrInternal = errors.New("internal error")

// JSON-RPC error codes. The -32000..-32099 range is application
// defined.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeApplication    = -32000
	CodeTimeout        = -32001
)

// Kind names the failure class for logs and tests.
func Kind(err error) string {
	var verr *validate.Error
	var dimErr *embeddings.DimensionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, catalog.ErrUnknownTool):
		return "unknown_tool"
	case errors.Is(err, session.ErrNoProject):
		return "missing_project"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrConflict):
		return "conflict"
	case errors.As(err, &dimErr):
		return "embedding_dimension_mismatch"
	case errors.Is(err, embeddings.ErrUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

// HTTPStatus maps a dispatch error to its HTTP status code.
func HTTPStatus(err error) int {
	var verr *validate.Error
	var dimErr *embeddings.DimensionError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoProject):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &dimErr):
		return http.StatusInternalServerError
	case errors.Is(err, embeddings.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// JSONRPCCode maps a dispatch error to its JSON-RPC error code.
func JSONRPCCode(err error) int {
	var verr *validate.Error
	var dimErr *embeddings.DimensionError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &verr):
		return CodeInvalidParams
	case errors.Is(err, catalog.ErrUnknownTool):
		return CodeMethodNotFound
	case errors.Is(err, session.ErrNoProject),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrConflict),
		errors.Is(err, embeddings.ErrUnavailable):
		return CodeApplication
	case errors.As(err, &dimErr):
		return CodeInternal
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

// UserMessage returns the caller-visible message for err. Database and
// unexpected failures collapse to a generic message; everything the
// caller can act on passes through.
func UserMessage(err error) string {
	var verr *validate.Error
	var dimErr *embeddings.DimensionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, catalog.ErrUnknownTool),
		errors.Is(err, session.ErrNoProject),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrConflict),
		errors.Is(err, embeddings.ErrUnavailable):
		return err.Error()
	case errors.As(err, &dimErr):
		return dimErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	default:
		return "internal error"
	}
}

// ValidationDetail returns the structured validation payload when err
// is a validation failure.
func ValidationDetail(err error) (*validate.Error, bool) {
	var verr *validate.Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
