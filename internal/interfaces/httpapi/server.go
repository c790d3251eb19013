package httpapi

import (
	"net/http"

	"github.com/riskibarqy/wellness-api/internal/platform/logging"
)

func NewRouter(handler *Handler, serviceName string, logger *logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handler.Healthz)
	mux.HandleFunc("GET /readyz", handler.Readyz)
	mux.HandleFunc("GET /v1/system/database", handler.DatabaseStatus)

	return RequestTracing(serviceName, RequestLogging(logger, recoverPanic(logger, mux)))
}
