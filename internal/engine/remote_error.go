package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"branchwarden/internal/azdo"
)

// presentRemoteError renders err for results and reports. Unless verbose, the
// request method and path are dropped so messages stay short and stable.
func presentRemoteError(err error, verbose bool) string {
	if err == nil {
		return "unknown error"
	}
	full := strings.TrimSpace(err.Error())
	if verbose {
		return full
	}

	// Prefer the structured error type to avoid echoing request details.
	var er *azdo.ErrorResponse
	if errors.As(err, &er) {
		status := fmt.Sprintf("%d %s", er.StatusCode, http.StatusText(er.StatusCode))
		msg := strings.TrimSpace(er.Message)
		if msg == "" {
			return fmt.Sprintf("Azure DevOps request failed (%s)", status)
		}
		return fmt.Sprintf("Azure DevOps request failed (%s): %s", status, msg)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "run timed out"
	case errors.Is(err, context.Canceled):
		return "run canceled"
	}

	if scrubbed := scrubRequestFromErrorString(full); scrubbed != "" {
		return scrubbed
	}
	return full
}

// scrubRequestFromErrorString drops a leading `Get "https://...": ` as
// produced by net/http client errors.
func scrubRequestFromErrorString(s string) string {
	upper := strings.ToUpper(s)
	for _, m := range []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "} {
		if !strings.HasPrefix(upper, m) {
			continue
		}
		rest := s[len(m):]
		rest = strings.TrimPrefix(rest, "\"")
		if i := strings.Index(rest, ": "); i >= 0 {
			return strings.TrimSpace(rest[i+2:])
		}
		return ""
	}
	return ""
}
