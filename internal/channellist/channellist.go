// Package channellist renders a registry's key set into the URL-safe,
// comma-joined path segment the subscribe request needs. Percent-encoding
// itself is treated as an external collaborator per spec: this package
// calls net/url rather than reimplementing escaping.
package channellist

import (
	"net/url"
	"strings"
)

// Empty is the literal the service accepts in place of an encoded list
// when a registry (most commonly the group registry) has no entries.
const Empty = "-"

// Encode percent-encodes each name and joins them with commas. names is
// expected to be a snapshot from a Registry's Keys(), already in that
// registry's iteration order — Encode does not sort, matching spec.md's
// "need not be sorted but must be stable for a fixed key set" contract.
// The caller is responsible for calling Encode only when the key set
// changes and caching the result; Encode itself does no caching.
func Encode(names []string) string {
	if len(names) == 0 {
		return Empty
	}
	escaped := make([]string, len(names))
	for i, n := range names {
		escaped[i] = url.PathEscape(n)
	}
	return strings.Join(escaped, ",")
}
