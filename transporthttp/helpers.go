package transporthttp

import (
	"fmt"
	"io"
)

// readAll reads the full response body. Subscribe envelopes are bounded
// in practice by the service's own per-poll message cap, so no limit
// reader is needed here the way error bodies get one below.
func readAll(rc io.ReadCloser) ([]byte, error) {
	return io.ReadAll(rc)
}

// readErrorBody reads up to maxErrorBodyBytes of a non-2xx response body
// for inclusion in the returned error.
func readErrorBody(rc io.ReadCloser) string {
	if rc == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(rc, maxErrorBodyBytes))
	if err != nil {
		return fmt.Sprintf("(failed to read error body: %v)", err)
	}
	return string(body)
}

// drainAndClose reads up to maxErrorBodyBytes of whatever remains in rc
// and closes it, so a short unread remainder does not keep the
// underlying connection from returning to the pool.
func drainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, maxErrorBodyBytes))
	rc.Close()
}
