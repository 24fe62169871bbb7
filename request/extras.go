package request

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Well-known extras.
const (
	// ExtraBase64Spec selects the base64 alphabet for data URIs:
	// "Default", "Mime" or "UrlSafe".
	ExtraBase64Spec = "sketch#base64_uri_spec"
)

type extra struct {
	value      any
	affectsKey bool
}

// Extras are free-form request parameters. Only those marked as affecting
// the key participate in the RequestKey.
type Extras struct {
	m map[string]extra
}

// Get returns the value stored under key.
func (e Extras) Get(key string) (any, bool) {
	v, ok := e.m[key]
	return v.value, ok
}

// GetString returns the value under key formatted as a string.
func (e Extras) GetString(key string) (string, bool) {
	v, ok := e.m[key]
	if !ok {
		return "", false
	}
	if s, ok := v.value.(string); ok {
		return s, true
	}
	return fmt.Sprint(v.value), true
}

// Len returns the number of extras.
func (e Extras) Len() int { return len(e.m) }

// keyString encodes key-affecting extras sorted by name, or "" if none.
func (e Extras) keyString() string {
	names := slices.Sorted(maps.Keys(e.m))
	var b strings.Builder
	for _, name := range names {
		v := e.m[name]
		if !v.affectsKey {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s:%v", name, v.value)
	}
	if b.Len() == 0 {
		return ""
	}
	return "{" + b.String() + "}"
}

func (e Extras) with(key string, value any, affectsKey bool) Extras {
	m := make(map[string]extra, len(e.m)+1)
	maps.Copy(m, e.m)
	m[key] = extra{value: value, affectsKey: affectsKey}
	return Extras{m: m}
}
