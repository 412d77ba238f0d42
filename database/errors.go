package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
)

// Store-side failures are reported by the driver only as text; these
// signatures decide which domain error they become.
var (
	accessDeniedSignatures = []string{
		"row-level security",
		"policy violation",
		"permission denied",
	}
	transientSignatures = []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"connection refused",
		"connection reset",
		"i/o timeout",
	}
)

// Classify maps a driver error to pkg.ErrAccessDenied or pkg.ErrTransient,
// keeping the original message in the chain. Any other error (and nil) is
// returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pkg.ErrAccessDenied) || errors.Is(err, pkg.ErrTransient) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", pkg.ErrTransient, err)
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range accessDeniedSignatures {
		if strings.Contains(msg, sig) {
			return fmt.Errorf("%w: %v", pkg.ErrAccessDenied, err)
		}
	}
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return fmt.Errorf("%w: %v", pkg.ErrTransient, err)
		}
	}
	return err
}
