package dburl

import (
	"crypto/x509"
	"strings"
)

const (
	// AsyncScheme is the scheme of URLs meant for the async PostgreSQL driver.
	AsyncScheme       = "postgresql+asyncpg"
	asyncDriverSuffix = "+asyncpg"

	driverDialect = "postgresql"
	sslModeParam  = "sslmode"
)

// ConnectArgs holds driver options that cannot be expressed in the DSN.
// A nil SSL means the driver keeps its own default.
type ConnectArgs struct {
	SSL *SSLSetting
}

func (a ConnectArgs) Empty() bool {
	return a.SSL == nil
}

type options struct {
	rootCAs *x509.CertPool
}

// Option tunes PrepareEngineArguments.
type Option func(*options)

// WithRootCAs sets the trust roots used by the verify-ca TLS context.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(o *options) {
		o.rootCAs = pool
	}
}

// PrepareEngineArguments strips sslmode from async driver URLs and moves it
// into the ssl connect argument. Any other URL is returned untouched with
// empty args. Parse errors are returned as produced by net/url.
func PrepareEngineArguments(raw string, opts ...Option) (string, ConnectArgs, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	parsed, err := Parse(raw)
	if err != nil {
		return "", ConnectArgs{}, err
	}
	if !IsAsyncDriver(parsed.Scheme) {
		return raw, ConnectArgs{}, nil
	}

	base, query, fragment, hasQuery, hasFragment := splitRaw(raw)
	if !hasQuery {
		return raw, ConnectArgs{}, nil
	}

	kept, modes := removeParam(query, sslModeParam)
	if len(modes) == 0 {
		return raw, ConnectArgs{}, nil
	}

	ssl := sslModeToDriverSSL(SSLMode(modes[len(modes)-1]), o.rootCAs)
	return joinRaw(base, kept, fragment, hasFragment), ConnectArgs{SSL: &ssl}, nil
}

// DriverDSN rewrites the async driver scheme of a sanitized URL to the plain
// dialect scheme understood by pgx.
func DriverDSN(sanitized string) string {
	scheme, _, found := strings.Cut(sanitized, ":")
	if !found || !IsAsyncDriver(scheme) {
		return sanitized
	}
	return withScheme(sanitized, dialect(scheme))
}

// SyncDriverURL returns raw in the form used by lib/pq and the migration
// tool: any "+driver" scheme suffix is dropped and sslmode is kept.
func SyncDriverURL(raw string) (string, error) {
	parsed, err := Parse(raw)
	if err != nil {
		return "", err
	}
	if !strings.Contains(parsed.Scheme, "+") {
		return raw, nil
	}
	return withScheme(raw, dialect(parsed.Scheme)), nil
}

func dialect(scheme string) string {
	name, _, _ := strings.Cut(strings.ToLower(scheme), "+")
	if name == "" || name == "postgres" {
		return driverDialect
	}
	return name
}
