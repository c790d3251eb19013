package database

import (
	"crypto/x509"
	"os"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"

	"github.com/riskibarqy/wellness-api/internal/config"
	"github.com/riskibarqy/wellness-api/internal/platform/resilience"
)

// Options configures Open.
type Options struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	// RootCAs backs the verify-ca TLS context; nil means system roots.
	RootCAs *x509.CertPool
	// Probe guards Engine.Ping. Zero fields use the breaker defaults.
	Probe resilience.BreakerConfig
}

var ErrNoCertificates = crerr.New("database: root certificate file has no PEM certificates")

func OptionsFromConfig(cfg config.Config) (Options, error) {
	opts := Options{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnectTimeout:  cfg.DBConnectTimeout,
		Probe: resilience.BreakerConfig{
			FailureThreshold: cfg.DBProbeFailureThreshold,
			OpenTimeout:      cfg.DBProbeOpenTimeout,
		},
	}

	if path := strings.TrimSpace(cfg.DBSSLRootCert); path != "" {
		pool, err := loadRootCAs(path)
		if err != nil {
			return Options{}, err
		}
		opts.RootCAs = pool
	}

	return opts, nil
}

func loadRootCAs(path string) (*x509.CertPool, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, crerr.Wrapf(err, "read root certificate %s", path)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, crerr.Wrapf(ErrNoCertificates, "load %s", path)
	}
	return pool, nil
}

func (o Options) withDefaults() Options {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	if o.MaxIdleConns < 0 || o.MaxIdleConns > o.MaxOpenConns {
		o.MaxIdleConns = o.MaxOpenConns
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	return o
}
