// Package urlenc builds form and query encoded parameter strings that
// preserve insertion order. The standard url.Values re-sorts keys on
// Encode, but token endpoints and tests observe parameter order, so the
// request shapes are encoded exactly as assembled.
package urlenc

import (
	"net/url"
	"sort"
	"strings"
)

// Param is a single key/value pair.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list.
type Params []Param

// Append adds a pair, keeping insertion order.
func (p Params) Append(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// AppendExtras adds a caller supplied parameter map in sorted key order
// so the encoded output is deterministic.
func (p Params) AppendExtras(extra map[string]string) Params {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p = p.Append(k, extra[k])
	}
	return p
}

// Encode renders the pairs as key=value&... with URL escaped values.
func (p Params) Encode() string {
	var b strings.Builder
	for i, param := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(param.Key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(param.Value))
	}
	return b.String()
}
