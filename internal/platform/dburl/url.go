package dburl

import (
	"errors"
	"net/url"
	"strings"
)

const redactedPassword = "xxxxx"

// Param is one query parameter as it appeared in the raw URL.
type Param struct {
	Key   string
	Value string
	raw   string
}

// ConnectionURL is the structural view of a database connection URL.
// The raw string is kept so the URL can be reproduced without re-encoding.
type ConnectionURL struct {
	Scheme      string
	Username    string
	Password    string
	HasPassword bool
	Host        string
	Port        string
	Database    string
	Params      []Param

	raw string
}

// Parse splits raw into its components. Errors are the *url.Error from
// net/url with the password masked in its URL field.
func Parse(raw string) (ConnectionURL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redact(raw)
		}
		return ConnectionURL{}, err
	}

	out := ConnectionURL{
		Scheme:   parsed.Scheme,
		Host:     parsed.Hostname(),
		Port:     parsed.Port(),
		Database: strings.TrimPrefix(parsed.Path, "/"),
		Params:   parseParams(parsed.RawQuery),
		raw:      raw,
	}
	if parsed.User != nil {
		out.Username = parsed.User.Username()
		out.Password, out.HasPassword = parsed.User.Password()
	}

	return out, nil
}

// Get returns the last value of key. Repeated keys resolve to the last one.
func (u ConnectionURL) Get(key string) (string, bool) {
	value, found := "", false
	for _, p := range u.Params {
		if p.Key == key {
			value, found = p.Value, true
		}
	}
	return value, found
}

func (u ConnectionURL) String() string {
	return u.raw
}

// Redacted returns the URL with its password masked. Use it for logs.
func (u ConnectionURL) Redacted() string {
	if !u.HasPassword {
		return u.raw
	}
	return redact(u.raw)
}

// IsAsyncDriver reports whether scheme selects the async PostgreSQL driver.
func IsAsyncDriver(scheme string) bool {
	scheme = strings.ToLower(scheme)
	return scheme == AsyncScheme || strings.HasSuffix(scheme, asyncDriverSuffix)
}

func parseParams(rawQuery string) []Param {
	if rawQuery == "" {
		return nil
	}

	segments := strings.Split(rawQuery, "&")
	out := make([]Param, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(segment, "=")
		out = append(out, Param{
			Key:   unescape(rawKey),
			Value: unescape(rawValue),
			raw:   segment,
		})
	}
	return out
}

func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// splitRaw cuts raw the same way net/url does: fragment first, then query.
func splitRaw(raw string) (base, query, fragment string, hasQuery, hasFragment bool) {
	body, fragment, hasFragment := strings.Cut(raw, "#")
	base, query, hasQuery = strings.Cut(body, "?")
	return base, query, fragment, hasQuery, hasFragment
}

func joinRaw(base, query, fragment string, hasFragment bool) string {
	var b strings.Builder
	b.Grow(len(base) + len(query) + len(fragment) + 2)
	b.WriteString(base)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	if hasFragment {
		b.WriteByte('#')
		b.WriteString(fragment)
	}
	return b.String()
}

// removeParam drops every segment of rawQuery whose decoded key is key and
// returns the decoded values in order. Other segments are kept verbatim.
func removeParam(rawQuery, key string) (string, []string) {
	segments := strings.Split(rawQuery, "&")
	kept := segments[:0:0]
	var values []string
	for _, segment := range segments {
		rawKey, rawValue, _ := strings.Cut(segment, "=")
		if segment != "" && unescape(rawKey) == key {
			values = append(values, unescape(rawValue))
			continue
		}
		kept = append(kept, segment)
	}
	return strings.Join(kept, "&"), values
}

// withScheme replaces the scheme of raw, leaving the rest untouched.
func withScheme(raw, scheme string) string {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return raw
	}
	return scheme + raw[idx:]
}

func redact(raw string) string {
	base, query, fragment, _, hasFragment := splitRaw(raw)

	schemeEnd := strings.Index(base, "://")
	if schemeEnd < 0 {
		return raw
	}
	authorityStart := schemeEnd + len("://")
	authority := base[authorityStart:]
	if slash := strings.Index(authority, "/"); slash >= 0 {
		authority = authority[:slash]
	}

	at := strings.LastIndex(authority, "@")
	if at < 0 {
		return raw
	}
	colon := strings.Index(authority[:at], ":")
	if colon < 0 {
		return raw
	}

	passStart := authorityStart + colon + 1
	passEnd := authorityStart + at
	masked := base[:passStart] + redactedPassword + base[passEnd:]
	return joinRaw(masked, query, fragment, hasFragment)
}
