package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/chainsat/pkg/docstore"
	chainerrors "github.com/matzehuels/chainsat/pkg/errors"
	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/smt"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Code    chainerrors.Code `json:"code"`
	Message string           `json:"message"`
}

var statusByCode = map[chainerrors.Code]int{
	chainerrors.ErrCodeInvalidInput:     http.StatusBadRequest,
	chainerrors.ErrCodeInvalidEcosystem: http.StatusBadRequest,
	chainerrors.ErrCodeInvalidPackage:   http.StatusBadRequest,
	chainerrors.ErrCodeParseFailure:     http.StatusBadRequest,
	chainerrors.ErrCodeNotAuthenticated: http.StatusUnauthorized,
	chainerrors.ErrCodeInvalidToken:     http.StatusUnauthorized,
	chainerrors.ErrCodeExpiredToken:     http.StatusUnauthorized,
	chainerrors.ErrCodeNotFound:         http.StatusNotFound,
	chainerrors.ErrCodeMemoryExhausted:  http.StatusServiceUnavailable,
	chainerrors.ErrCodeTransportRetry:   http.StatusServiceUnavailable,
	chainerrors.ErrCodeDecodeFailure:    http.StatusBadGateway,
	chainerrors.ErrCodeSMTTimeout:       http.StatusGatewayTimeout,
}

// coded attaches a code to sentinel errors that reach the handlers
// without one.
func coded(err error) *chainerrors.Error {
	var e *chainerrors.Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, graph.ErrNotFound):
		return chainerrors.Wrap(chainerrors.ErrCodeNotFound, err, "not found")
	case errors.Is(err, graph.ErrMemoryExhausted):
		return chainerrors.Wrap(chainerrors.ErrCodeMemoryExhausted, err, "graph store exhausted")
	case errors.Is(err, integrations.ErrDecode):
		return chainerrors.Wrap(chainerrors.ErrCodeDecodeFailure, err, "upstream payload could not be decoded")
	case errors.Is(err, smt.ErrTimeout):
		return chainerrors.Wrap(chainerrors.ErrCodeSMTTimeout, err, "solver timed out")
	default:
		return chainerrors.Wrap(chainerrors.ErrCodeInternal, err, "internal error")
	}
}

// authError maps an authentication failure to its code.
func authError(err error) *chainerrors.Error {
	switch {
	case err == nil:
		return chainerrors.New(chainerrors.ErrCodeNotAuthenticated, "missing X-API-Key header")
	case errors.Is(err, docstore.ErrExpired):
		return chainerrors.New(chainerrors.ErrCodeExpiredToken, "api key expired")
	case errors.Is(err, docstore.ErrNotFound):
		return chainerrors.New(chainerrors.ErrCodeInvalidToken, "invalid api key")
	default:
		return chainerrors.Wrap(chainerrors.ErrCodeInternal, err, "authenticate")
	}
}

func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	e := coded(err)
	status, ok := statusByCode[e.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := e.Message
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Code: e.Code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return chainerrors.Wrap(chainerrors.ErrCodeInvalidInput, err, "invalid request body")
	}
	return nil
}
