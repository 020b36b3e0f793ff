package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const passwordQuery = "data.nutrihub.password.violations"

// maxPasswordBytes is bcrypt's input limit. It is enforced even when a custom
// policy omits it, since a longer password cannot be hashed.
const (
	maxPasswordBytes = 72
	tooLongViolation = "password must be at most 72 bytes"
)

// DefaultPasswordPolicy is used when no policy file is configured.
// input.password_bytes is the UTF-8 length; 72 bytes is bcrypt's input limit.
const DefaultPasswordPolicy = `package nutrihub.password

violations contains "password must be at least 8 characters" if {
	count(input.password) < 8
}

violations contains "password must be at most 72 bytes" if {
	input.password_bytes > 72
}

violations contains "password must contain an uppercase letter" if {
	not regex.match("[A-Z]", input.password)
}

violations contains "password must contain a lowercase letter" if {
	not regex.match("[a-z]", input.password)
}

violations contains "password must contain a digit" if {
	not regex.match("[0-9]", input.password)
}

violations contains "password must not contain the username" if {
	count(input.username) >= 3
	contains(lower(input.password), lower(input.username))
}
`

// OPAEvaluator evaluates the password policy using OPA Rego.
// The query is prepared once; evaluation is safe for concurrent use.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles module (DefaultPasswordPolicy when empty). The module
// must define data.nutrihub.password.violations as a set of strings.
func NewOPAEvaluator(ctx context.Context, module string) (*OPAEvaluator, error) {
	if module == "" {
		module = DefaultPasswordPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"password.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile password policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(passwordQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare password policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// NewOPAEvaluatorFromFile loads the Rego module at path, or the default policy when path is empty.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read password policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// CheckPassword implements PasswordChecker.
func (e *OPAEvaluator) CheckPassword(ctx context.Context, password, username, email string) ([]string, error) {
	input := map[string]interface{}{
		"password":       password,
		"password_bytes": len(password),
		"username":       username,
		"email":          email,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("eval password policy: %w", err)
	}
	out := []string{}
	// An undefined set means no rule fired.
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		raw, ok := rs[0].Expressions[0].Value.([]interface{})
		if !ok {
			return nil, errors.New("password policy: violations is not a set")
		}
		for _, v := range raw {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("password policy: violation %v is not a string", v)
			}
			out = append(out, s)
		}
	}
	if len(password) > maxPasswordBytes && !slices.Contains(out, tooLongViolation) {
		out = append(out, tooLongViolation)
	}
	sort.Strings(out)
	return out, nil
}

// HealthCheck verifies that the prepared policy still evaluates.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.CheckPassword(ctx, "HealthCheck1", "healthcheck", "healthcheck@example.com")
	return err
}
