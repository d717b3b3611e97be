// Package keys implements the canonical request-fingerprint codec. A key
// identifies one unique upstream request as
// "providerId:type:k1=v1;k2=v2;..." with param names lowercased, values
// trimmed and percent-encoded, and pairs sorted by name. Keys are opaque to
// everything except providers and this codec.
package keys

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrMalformed is returned when a key cannot be decoded.
var ErrMalformed = errors.New("malformed key")

// Parsed is the decoded form of a key.
type Parsed struct {
	Provider string
	Type     string
	Params   map[string]string
}

// Build produces the canonical key for a provider, subscription type, and
// parameter map. Param names are lowercased and sorted; values are trimmed
// and percent-encoded, so Build is deterministic for equivalent inputs.
func Build(provider, typ string, params map[string]string) string {
	names := make([]string, 0, len(params))
	normalized := make(map[string]string, len(params))
	for name, value := range params {
		lower := strings.ToLower(name)
		if _, dup := normalized[lower]; !dup {
			names = append(names, lower)
		}
		normalized[lower] = url.QueryEscape(strings.TrimSpace(value))
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+normalized[name])
	}
	return provider + ":" + typ + ":" + strings.Join(pairs, ";")
}

// Parse decodes a canonical key. It fails with ErrMalformed when the key has
// fewer than three colon-separated segments or a value cannot be unescaped.
func Parse(key string) (Parsed, error) {
	segments := strings.SplitN(key, ":", 3)
	if len(segments) < 3 || segments[0] == "" || segments[1] == "" {
		return Parsed{}, fmt.Errorf("%w: %q", ErrMalformed, key)
	}

	parsed := Parsed{
		Provider: segments[0],
		Type:     segments[1],
		Params:   make(map[string]string),
	}
	if segments[2] == "" {
		return parsed, nil
	}

	for _, pair := range strings.Split(segments[2], ";") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		value := ""
		if len(kv) == 2 {
			decoded, err := url.QueryUnescape(kv[1])
			if err != nil {
				return Parsed{}, fmt.Errorf("%w: undecodable value in %q", ErrMalformed, key)
			}
			value = decoded
		}
		parsed.Params[kv[0]] = value
	}
	return parsed, nil
}
