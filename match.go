package s3installer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// Match policy names accepted by --match-policy.
const (
	MatchPolicyLiteral = "literal"
	MatchPolicyPattern = "pattern"
	MatchPolicyExpr    = "expr"
)

// MatchOption selects how a route's prefix filter is compared with a declared prefix.
//
// Supported policies:
//   - "literal": the filter value starts with the declared prefix (default)
//   - "pattern": the declared prefix is a regular expression anchored at the start of the filter value
//   - "expr": a CEL expression over bucket, prefix and filter that returns bool
type MatchOption struct {
	Policy string `help:"prefix match policy" default:"literal" enum:"literal,pattern,expr" env:"S3INSTALLER_MATCH_POLICY"`
	Expr   string `help:"CEL expression for the expr match policy (variables: bucket, prefix, filter)" env:"S3INSTALLER_MATCH_EXPR"`
}

// MatchPolicy decides whether a route whose prefix filter is filter covers
// the declared prefix of bucket.
type MatchPolicy interface {
	Match(bucket, prefix, filter string) (bool, error)
}

// NewMatchPolicy creates the MatchPolicy named by the option.
func NewMatchPolicy(opt MatchOption) (MatchPolicy, error) {
	switch opt.Policy {
	case MatchPolicyLiteral, "":
		return LiteralPrefixPolicy{}, nil
	case MatchPolicyPattern:
		return NewPatternPolicy(), nil
	case MatchPolicyExpr:
		if opt.Expr == "" {
			return nil, &ConfigError{Key: "match-expr", Reason: "is required when match policy is expr"}
		}
		return NewExprPolicy(opt.Expr)
	}
	return nil, &ConfigError{Key: "match-policy", Reason: fmt.Sprintf("unknown policy %q", opt.Policy)}
}

// LiteralPrefixPolicy compares strings literally: the filter value must
// start with the declared prefix.
type LiteralPrefixPolicy struct{}

// Match reports whether filter starts with prefix.
func (LiteralPrefixPolicy) Match(_, prefix, filter string) (bool, error) {
	return strings.HasPrefix(filter, prefix), nil
}

// PatternPolicy treats the declared prefix as a regular expression that must
// match at the start of the filter value. Characters such as '.' or '+' in a
// prefix keep their regular expression meaning.
type PatternPolicy struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// NewPatternPolicy creates a PatternPolicy with an empty pattern cache.
func NewPatternPolicy() *PatternPolicy {
	return &PatternPolicy{
		cache: make(map[string]*regexp.Regexp),
	}
}

// Match reports whether prefix, compiled as a pattern, matches the start of filter.
func (p *PatternPolicy) Match(_, prefix, filter string) (bool, error) {
	re, err := p.compile(prefix)
	if err != nil {
		return false, err
	}
	return re.MatchString(filter), nil
}

func (p *PatternPolicy) compile(prefix string) (*regexp.Regexp, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if re, ok := p.cache[prefix]; ok {
		return re, nil
	}
	re, err := regexp.Compile("^(?:" + prefix + ")")
	if err != nil {
		return nil, fmt.Errorf("prefix %q is not a valid pattern: %w", prefix, err)
	}
	p.cache[prefix] = re
	return re, nil
}

// ExprPolicy evaluates a CEL expression, e.g.
//
//	filter.startsWith(prefix) || filter == prefix + "/"
type ExprPolicy struct {
	raw     string
	program cel.Program
}

// NewExprPolicy compiles expr. It fails unless the expression returns bool.
func NewExprPolicy(expr string) (*ExprPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("bucket", cel.StringType),
		cel.Variable("prefix", cel.StringType),
		cel.Variable("filter", cel.StringType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("CEL expression must return bool, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return &ExprPolicy{raw: expr, program: prg}, nil
}

// Raw returns the raw expression.
func (p *ExprPolicy) Raw() string {
	return p.raw
}

// Match evaluates the expression with bucket, prefix and filter bound.
func (p *ExprPolicy) Match(bucket, prefix, filter string) (bool, error) {
	result, _, err := p.program.Eval(map[string]any{
		"bucket": bucket,
		"prefix": prefix,
		"filter": filter,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}
	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression returned non-bool value: %T", result.Value())
	}
	return b, nil
}
