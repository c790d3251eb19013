package httpapi

import (
	"context"
	"errors"
	"net/http"

	sonic "github.com/bytedance/sonic"
)

const (
	apiVersion  = "2.0"
	errorDomain = "wellness-api"
)

// ErrDependencyUnavailable marks failures of a backing service such as the
// database.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

type responseEnvelope struct {
	APIVersion string     `json:"apiVersion"`
	Data       any        `json:"data,omitempty"`
	Error      *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Status  string      `json:"status"`
	Errors  []errorItem `json:"errors,omitempty"`
}

type errorItem struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, responseEnvelope{
		APIVersion: apiVersion,
		Data:       data,
	})
}

// writeError never echoes err to the client: driver errors can carry hosts
// and user names.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	_, span := startSpan(ctx, "httpapi.writeError")
	defer span.End()

	status, reason, code := http.StatusInternalServerError, "internalError", "INTERNAL"
	msg := "internal server error"
	if errors.Is(err, ErrDependencyUnavailable) {
		status, reason, code = http.StatusServiceUnavailable, "dependencyUnavailable", "UNAVAILABLE"
		msg = ErrDependencyUnavailable.Error()
	}

	writeJSON(w, status, responseEnvelope{
		APIVersion: apiVersion,
		Error: &errorBody{
			Code:    status,
			Message: msg,
			Status:  code,
			Errors: []errorItem{
				{
					Domain:  errorDomain,
					Reason:  reason,
					Message: msg,
				},
			},
		},
	})
}
