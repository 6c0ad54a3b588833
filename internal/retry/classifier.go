// Package retry classifies item failures as recoverable or terminal.
// Recoverable failures are re-queued until the attempt ceiling is reached;
// everything else stays errored until an operator intervenes.
package retry

import (
	"errors"
	"strings"
)

var (
	// ErrTransient marks failures caused by network or upstream conditions
	// that are expected to clear on their own.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures that will not succeed on retry, such as a
	// removed or private item.
	ErrPermanent = errors.New("permanent failure")
)

// recoverablePatterns are matched case-insensitively against error text when
// no sentinel marker is attached. The list is deliberately narrow: an
// unrecognized error is treated as terminal, never retried blindly.
var recoverablePatterns = []string{
	"broken pipe",
	"timed out",
	"connection reset",
	"connection refused",
	"network is unreachable",
	"temporary failure",
	"503",
	"502",
	"500",
}

// Recoverable reports whether the error warrants an automatic retry.
// Sentinel markers win over text matching.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	return RecoverableText(err.Error())
}

// RecoverableText classifies a persisted error message, used when sweeping
// errored rows whose original error values are gone.
func RecoverableText(message string) bool {
	message = strings.ToLower(message)
	if message == "" {
		return false
	}
	for _, pattern := range recoverablePatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}
