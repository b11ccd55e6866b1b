package syncqueue

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/dukerupert/basket/internal/remote"
)

var transientPhrases = []string{
	"network",
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"blocked",
	"failed to fetch",
	"offline",
	"unavailable",
	"resource-exhausted",
	"deadline-exceeded",
}

// IsRetryable reports whether err looks like a transient network condition.
// Everything else is treated as permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetriesExhausted) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) {
		switch remoteErr.Code {
		case remote.CodeUnavailable, remote.CodeResourceExhausted, remote.CodeDeadlineExceeded:
			return true
		}
		switch remoteErr.Status {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
