package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DefaultNamespace prefixes every key derived for a cached view.
const DefaultNamespace = "views"

// Keyer derives deterministic cache keys from a request's identity.
//
// Contract:
//   - Determinism: same host, path and parameter values produce the same key,
//     regardless of map iteration or insertion order.
//   - Concurrency: safe for concurrent use; Keyer holds no mutable state.
type Keyer struct {
	namespace string
}

// NewKeyer creates a keyer for the given namespace. An empty namespace
// selects DefaultNamespace.
func NewKeyer(namespace string) *Keyer {
	namespace = strings.Trim(namespace, "/")
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Keyer{namespace: namespace}
}

// Namespace returns the key prefix.
func (k *Keyer) Namespace() string {
	return k.namespace
}

// Derive builds the key for a request.
// Format: <namespace>/<host>/<path>?<p1>=<v1>&<p2>=<v2>
// where parameters are sorted by name. Empty params yield no '?' suffix.
func (k *Keyer) Derive(host, path string, params map[string]string) (string, error) {
	if strings.TrimSpace(host) == "" {
		return "", fmt.Errorf("%w: host is required", ErrInvalidArgument)
	}
	path = strings.TrimLeft(path, "/")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: path is required", ErrInvalidArgument)
	}

	var b strings.Builder
	b.Grow(len(k.namespace) + len(host) + len(path) + 2 + 16*len(params))
	b.WriteString(k.namespace)
	b.WriteByte('/')
	b.WriteString(host)
	b.WriteByte('/')
	b.WriteString(path)

	if len(params) == 0 {
		return b.String(), nil
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[name]))
	}

	return b.String(), nil
}
