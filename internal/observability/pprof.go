package observability

import (
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/riskibarqy/wellness-api/internal/config"
)

// NewPprofServer returns the debug server, or nil when pprof is disabled.
// The caller owns its lifecycle.
func NewPprofServer(cfg config.Config) *http.Server {
	if !cfg.PprofEnabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &http.Server{
		Addr:              cfg.PprofAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
