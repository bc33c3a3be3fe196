// Package errtax defines the stable error-code taxonomy used by the admin
// and health HTTP surface. The /submit endpoint itself never surfaces these
// to clients: it always returns 200.
package errtax

import "sort"

// Code is a stable, API-documented error code.
type Code string

const (
	CrashMalformed           Code = "crash.malformed"
	CrashRejected            Code = "crash.rejected"
	CrashStorageUnavailable  Code = "crash.storage_unavailable"
	CrashPublishUnavailable  Code = "crash.publish_unavailable"
	CrashDropped             Code = "crash.dropped"
	Internal                 Code = "internal"
)

// Meta provides metadata useful for HTTP mapping and retry decisions.
type Meta struct {
	HTTPStatus  int    `json:"http_status"`
	Retryable   bool   `json:"retryable"`
	Kind        string `json:"kind"` // client|server|dependency
	Description string `json:"description"`
}

var registry = map[Code]Meta{
	CrashMalformed:          {HTTPStatus: 200, Retryable: false, Kind: "client", Description: "submission failed format-level parsing"},
	CrashRejected:           {HTTPStatus: 200, Retryable: false, Kind: "client", Description: "throttler rejected the submission"},
	CrashStorageUnavailable: {HTTPStatus: 503, Retryable: true, Kind: "dependency", Description: "crash storage backend unavailable"},
	CrashPublishUnavailable: {HTTPStatus: 503, Retryable: true, Kind: "dependency", Description: "crash publish backend unavailable"},
	CrashDropped:            {HTTPStatus: 200, Retryable: false, Kind: "server", Description: "submission exceeded max attempts in one state and was dropped"},
	Internal:                {HTTPStatus: 500, Retryable: true, Kind: "server", Description: "internal error"},
}

// Lookup returns metadata for a code.
func Lookup(code Code) (Meta, bool) {
	m, ok := registry[code]
	return m, ok
}

// List returns all known codes, sorted.
func List() []Code {
	out := make([]Code, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
