// Package admission gates control-plane writes through an OPA policy. The
// rego decision is consumed opaquely: only the allow boolean and reason
// strings are interpreted.
package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"ledgerd/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.ledgerd.admission.result"

type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngineFromBundlePath compiles the rego bundle at the given path with a
// restricted builtin set. Modules reaching for network or environment
// builtins fail at startup, not at decision time.
func NewEngineFromBundlePath(ctx context.Context, bundlePath string) (*Engine, error) {
	if strings.TrimSpace(bundlePath) == "" {
		return nil, errors.New("admission bundle path is required")
	}
	return newEngine(ctx, rego.Load([]string{bundlePath}, nil))
}

// NewEngineFromModule compiles a single in-memory module, used in tests.
func NewEngineFromModule(ctx context.Context, filename, module string) (*Engine, error) {
	return newEngine(ctx, rego.Module(filename, module))
}

func newEngine(ctx context.Context, source func(*rego.Rego)) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		source,
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func (e *Engine) Admit(ctx context.Context, input map[string]any) (domain.AdmissionDecision, error) {
	if e == nil {
		return domain.AdmissionDecision{}, errors.New("admission engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.AdmissionDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.AdmissionDecision{}, errors.New("empty admission result")
	}
	result, err := decodeResult(results[0].Expressions[0].Value)
	if err != nil {
		return domain.AdmissionDecision{}, err
	}
	reasons := make([]string, 0, len(result.Deny))
	for _, deny := range result.Deny {
		if deny.Code != "" && deny.Message != "" {
			reasons = append(reasons, deny.Code+": "+deny.Message)
			continue
		}
		if deny.Code != "" {
			reasons = append(reasons, deny.Code)
			continue
		}
		reasons = append(reasons, deny.Message)
	}
	sort.Strings(reasons)
	return domain.AdmissionDecision{
		Allow:   result.Allow && len(result.Deny) == 0,
		Reasons: reasons,
	}, nil
}

type admissionResult struct {
	Allow bool         `json:"allow"`
	Deny  []denyReason `json:"deny"`
}

type denyReason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeResult(value any) (admissionResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return admissionResult{}, err
	}
	var result admissionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return admissionResult{}, err
	}
	return result, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("admission compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
