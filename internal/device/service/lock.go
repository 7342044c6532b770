// Package service implements the device side of the client: the remote device catalog and
// the two-step lock workflow (assign owner, then apply the single-app lock).
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"classroom-lock/client/internal/device/domain"
	"classroom-lock/client/internal/mdm"
	"classroom-lock/client/internal/policy/engine"
	"classroom-lock/client/internal/telemetry"
	telemetrydomain "classroom-lock/client/internal/telemetry/domain"
)

// Sentinel errors for the lock service.
var (
	ErrDeviceHasNoOwner     = errors.New("device has no owner; assign one before locking")
	ErrAppHasNoBundleID     = errors.New("app has no bundle identifier")
	ErrStudentNotConfigured = errors.New("lock student id is not configured")
	ErrLockDenied           = errors.New("lock denied by policy")
)

// DefaultClearAfter is used when Options.ClearAfter is zero.
const DefaultClearAfter = time.Hour

// Step names a stage of the lock workflow.
type Step string

const (
	StepSetOwner  Step = "set_owner"
	StepApplyLock Step = "apply_lock"
	StepStopLock  Step = "stop_lock"
)

// StepError reports which remote step failed. It unwraps to the remote error.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	switch e.Step {
	case StepSetOwner:
		return fmt.Sprintf("assign device owner: %v", e.Err)
	case StepApplyLock:
		return fmt.Sprintf("apply app lock (device owner already assigned): %v", e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep returns the workflow step err came from, or "" when err is not a StepError.
func FailedStep(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

// LockRemote is the subset of the MDM client used by the lock workflow.
type LockRemote interface {
	SetDeviceOwner(ctx context.Context, udid, userID string) (*mdm.MessageResponse, error)
	ApplyAppLock(ctx context.Context, req mdm.AppLockRequest) (*mdm.MessageResponse, error)
	StopAppLock(ctx context.Context, studentID string) (*mdm.MessageResponse, error)
}

// SelectionCounter records successful locks.
type SelectionCounter interface {
	IncrementCount(ctx context.Context, deviceKey string, appID uuid.UUID) (int, error)
}

// HiddenChecker reports whether an app is hidden on a device.
type HiddenChecker interface {
	IsHidden(deviceKey string, appID uuid.UUID) bool
}

// Options configures a LockService.
type Options struct {
	// OwnerUserID is assigned as device owner in step 1. When empty the device's current owner is reassigned.
	OwnerUserID string
	// StudentID is the target of apply/stop app lock.
	StudentID string
	// ClearAfter is how long the server keeps the lock.
	ClearAfter time.Duration
	// Policy, when set, is consulted before any remote call.
	Policy engine.Evaluator
	// Hidden feeds the policy input; optional.
	Hidden  HiddenChecker
	Emitter telemetry.EventEmitter
}

// LockService runs the lock and unlock workflows. It keeps no per-call state and may be
// used concurrently for different devices; callers serialize locks of the same device.
type LockService struct {
	remote     LockRemote
	counter    SelectionCounter
	ownerID    string
	studentID  string
	clearAfter time.Duration
	policy     engine.Evaluator
	hidden     HiddenChecker
	emitter    telemetry.EventEmitter

	attempts metric.Int64Counter
	failures metric.Int64Counter
}

// NewLockService returns a LockService. Metrics are recorded on the global MeterProvider.
func NewLockService(remote LockRemote, counter SelectionCounter, opts Options) *LockService {
	clearAfter := opts.ClearAfter
	if clearAfter <= 0 {
		clearAfter = DefaultClearAfter
	}
	meter := otel.Meter("classroom-lock/client/internal/device/service")
	attempts, err := meter.Int64Counter("classlock.lock.attempts",
		metric.WithDescription("Lock workflows started"))
	if err != nil {
		log.Printf("device: create attempts counter: %v", err)
	}
	failures, err := meter.Int64Counter("classlock.lock.failures",
		metric.WithDescription("Lock workflows failed, by step"))
	if err != nil {
		log.Printf("device: create failures counter: %v", err)
	}
	return &LockService{
		remote:     remote,
		counter:    counter,
		ownerID:    strings.TrimSpace(opts.OwnerUserID),
		studentID:  strings.TrimSpace(opts.StudentID),
		clearAfter: clearAfter,
		policy:     opts.Policy,
		hidden:     opts.Hidden,
		emitter:    opts.Emitter,
		attempts:   attempts,
		failures:   failures,
	}
}

// LockDeviceToApp assigns the device owner, then locks the student to app. Step 1 failure
// aborts before step 2 is attempted. A step 2 failure leaves the owner assignment in place.
// The selection count for (device, app) is incremented only after both steps succeed.
// The returned message is the server's message for the lock call.
func (s *LockService) LockDeviceToApp(ctx context.Context, device *domain.Device, app *domain.App) (string, error) {
	if device == nil || app == nil {
		return "", errors.New("device and app are required")
	}
	if !device.HasOwner() {
		return "", ErrDeviceHasNoOwner
	}
	if !app.Lockable() {
		return "", ErrAppHasNoBundleID
	}
	if s.studentID == "" {
		return "", ErrStudentNotConfigured
	}
	if s.policy != nil {
		hidden := s.hidden != nil && s.hidden.IsHidden(device.UDID, app.ID)
		decision, err := s.policy.EvaluateLock(ctx, device, app, hidden)
		if err != nil {
			return "", err
		}
		if !decision.Allowed {
			return "", fmt.Errorf("%w: %s", ErrLockDenied, strings.Join(decision.Reasons, "; "))
		}
	}

	s.addAttempt(ctx)
	ownerID := s.ownerID
	if ownerID == "" {
		ownerID = device.OwnerID
	}
	if _, err := s.remote.SetDeviceOwner(ctx, device.UDID, ownerID); err != nil {
		return "", s.fail(ctx, device, app, StepSetOwner, err)
	}

	resp, err := s.remote.ApplyAppLock(ctx, mdm.AppLockRequest{
		BundleID:   app.BundleID,
		ClearAfter: s.clearAfter,
		StudentIDs: []string{s.studentID},
	})
	if err != nil {
		return "", s.fail(ctx, device, app, StepApplyLock, err)
	}

	if _, err := s.counter.IncrementCount(ctx, device.UDID, app.ID); err != nil {
		log.Printf("device: lock applied on %s but selection count not saved: %v", device.UDID, err)
	}
	s.emit(ctx, telemetrydomain.EventLockApplied, device, map[string]string{
		"bundleId": app.BundleID,
		"ownerId":  ownerID,
	})
	log.Printf("device: locked %s to %s", device.UDID, app.BundleID)
	return lockMessage(resp, "Device locked to "+app.Title), nil
}

// Unlock stops the student's app lock. Selection counts are not touched. device is used
// for telemetry only and may be nil.
func (s *LockService) Unlock(ctx context.Context, device *domain.Device) (string, error) {
	if s.studentID == "" {
		return "", ErrStudentNotConfigured
	}
	resp, err := s.remote.StopAppLock(ctx, s.studentID)
	if err != nil {
		return "", &StepError{Step: StepStopLock, Err: err}
	}
	s.emit(ctx, telemetrydomain.EventUnlock, device, nil)
	return lockMessage(resp, "Device unlocked"), nil
}

func (s *LockService) fail(ctx context.Context, device *domain.Device, app *domain.App, step Step, err error) error {
	if s.failures != nil {
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", string(step))))
	}
	s.emit(ctx, telemetrydomain.EventLockFailed, device, map[string]string{
		"bundleId": app.BundleID,
		"step":     string(step),
		"kind":     string(mdm.Kind(err)),
	})
	log.Printf("device: lock of %s failed at %s: %v", device.UDID, step, err)
	return &StepError{Step: step, Err: err}
}

func (s *LockService) addAttempt(ctx context.Context) {
	if s.attempts != nil {
		s.attempts.Add(ctx, 1)
	}
}

func (s *LockService) emit(ctx context.Context, eventType string, device *domain.Device, metadata any) {
	if s.emitter == nil {
		return
	}
	deviceKey := ""
	if device != nil {
		deviceKey = device.UDID
	}
	telemetry.EmitAsync(s.emitter, ctx, telemetrydomain.NewEvent(eventType, "", deviceKey, metadata))
}

func lockMessage(resp *mdm.MessageResponse, fallback string) string {
	if resp != nil && strings.TrimSpace(resp.Message) != "" {
		return resp.Message
	}
	return fallback
}
