package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	devicedomain "classroom-lock/client/internal/device/domain"
)

const lockQuery = "data.classlock.lock"

// Default Rego policy: a device needs an owner and the app a bundle identifier.
const defaultRegoPolicy = `package classlock.lock

default allow := false

deny contains "device has no owner" if {
	not input.device.has_owner
}

deny contains "app has no bundle identifier" if {
	input.app.bundle_id == ""
}

allow if {
	count(deny) == 0
}
`

// OPAEvaluator evaluates the lock eligibility policy using OPA Rego.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles module (the built-in policy when empty) and prepares the lock query.
func NewOPAEvaluator(ctx context.Context, module string) (*OPAEvaluator, error) {
	if module == "" {
		module = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"lock.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile lock policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(lockQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare lock policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// NewOPAEvaluatorFromFile loads the policy module from path; an empty path selects the built-in policy.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lock policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(raw))
}

// HealthCheck evaluates the loaded policy against a lockable sample device. It fails when
// the policy cannot be evaluated or does not define data.classlock.lock; a deny is fine.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	sample := buildInput(&devicedomain.Device{OwnerID: "1"}, &devicedomain.App{BundleID: "com.example.app"}, false)
	if _, err := e.eval(ctx, sample); err != nil {
		return fmt.Errorf("eval lock policy: %w", err)
	}
	return nil
}

// EvaluateLock evaluates the lock policy. When evaluation fails the built-in rules are
// applied directly and the failure is logged.
func (e *OPAEvaluator) EvaluateLock(ctx context.Context, device *devicedomain.Device, app *devicedomain.App, hidden bool) (LockDecision, error) {
	if device == nil || app == nil {
		return LockDecision{}, fmt.Errorf("policy: device and app are required")
	}
	d, err := e.eval(ctx, buildInput(device, app, hidden))
	if err != nil {
		if ctx.Err() != nil {
			return LockDecision{}, ctx.Err()
		}
		log.Printf("policy: evaluation failed: %v, using defaults", err)
		return defaultDecision(device, app), nil
	}
	return d, nil
}

func buildInput(device *devicedomain.Device, app *devicedomain.App, hidden bool) map[string]interface{} {
	return map[string]interface{}{
		"device": map[string]interface{}{
			"udid":      device.UDID,
			"name":      device.Name,
			"owner_id":  device.OwnerID,
			"has_owner": device.HasOwner(),
			"app_count": len(device.AppIDs),
		},
		"app": map[string]interface{}{
			"id":           app.ID.String(),
			"title":        app.Title,
			"bundle_id":    app.BundleID,
			"on_device":    device.HasApp(app.ID),
			"hidden":       hidden,
			"has_icon_url": app.IconURL != "",
		},
	}
}

func (e *OPAEvaluator) eval(ctx context.Context, input map[string]interface{}) (LockDecision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return LockDecision{}, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return LockDecision{}, fmt.Errorf("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return LockDecision{}, fmt.Errorf("policy query returned %T, want object", rs[0].Expressions[0].Value)
	}
	out := LockDecision{}
	if v, ok := doc["allow"].(bool); ok {
		out.Allowed = v
	}
	if reasons, ok := doc["deny"].([]interface{}); ok {
		for _, r := range reasons {
			if s, ok := r.(string); ok {
				out.Reasons = append(out.Reasons, s)
			}
		}
		sort.Strings(out.Reasons)
	}
	if len(out.Reasons) > 0 {
		out.Allowed = false
	}
	return out, nil
}

func defaultDecision(device *devicedomain.Device, app *devicedomain.App) LockDecision {
	var reasons []string
	if !app.Lockable() {
		reasons = append(reasons, "app has no bundle identifier")
	}
	if !device.HasOwner() {
		reasons = append(reasons, "device has no owner")
	}
	return LockDecision{Allowed: len(reasons) == 0, Reasons: reasons}
}
