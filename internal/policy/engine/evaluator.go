package engine

import (
	"context"

	devicedomain "classroom-lock/client/internal/device/domain"
)

// LockDecision is the outcome of a lock eligibility evaluation.
type LockDecision struct {
	Allowed bool
	// Reasons lists why the lock was denied; empty when allowed.
	Reasons []string
}

// Evaluator decides whether a device may be locked to an app.
type Evaluator interface {
	// EvaluateLock evaluates the lock policy for device and app. hidden reports whether the
	// app is hidden on the device.
	EvaluateLock(ctx context.Context, device *devicedomain.Device, app *devicedomain.App, hidden bool) (LockDecision, error)
}
