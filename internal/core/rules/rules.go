// Package rules compiles and evaluates transformation rules.
//
// A rule is an expr-lang expression evaluated against a closed environment:
// every source field whose name is a plain identifier, the `row` map holding
// all fields by name, the helper functions registered in this package and,
// in merge contexts only, `current`. There is no way to reach I/O, the clock,
// or anything outside that environment.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/agenthands/intabular/internal/core/model"
)

var ErrInvalidRule = errors.New("invalid rule")

const (
	// CurrentVar is the existing target value in merge contexts.
	CurrentVar = "current"
	// RowVar gives access to fields whose names are not plain identifiers.
	RowVar = "row"

	maxNodes = 2000
)

// Builtins that read the clock or can allocate without bound.
var disabledBuiltins = []string{"now", "date", "duration", "timezone", "repeat"}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var keywords = map[string]bool{
	"in": true, "or": true, "and": true, "not": true, "matches": true,
	"contains": true, "startsWith": true, "endsWith": true, "let": true,
	"if": true, "else": true, "true": true, "false": true, "nil": true,
	RowVar: true, CurrentVar: true,
}

type Options struct {
	// AllowCurrent exposes `current`. Only merge rules may use it.
	AllowCurrent bool
}

// Program is a compiled rule. It is safe for concurrent use.
type Program struct {
	source  string
	program *vm.Program
	// identifier -> source field
	vars    map[string]string
	current bool
}

// Compile checks rule against the given source fields and returns a program
// ready to evaluate. Syntax errors, unknown names, disabled functions and
// `current` outside a merge context all fail with ErrInvalidRule.
func Compile(rule string, fields []string, opts Options) (*Program, error) {
	if !opts.AllowCurrent {
		tree, err := parser.Parse(rule)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		finder := &identFinder{name: CurrentVar}
		ast.Walk(&tree.Node, finder)
		if finder.found {
			return nil, fmt.Errorf("%w: %q is only available when merging into an existing row", ErrInvalidRule, CurrentVar)
		}
	}

	vars := Identifiers(fields)
	env := make(map[string]any, len(vars)+2)
	for ident := range vars {
		env[ident] = ""
	}
	env[RowVar] = map[string]string{}
	if opts.AllowCurrent {
		env[CurrentVar] = ""
	}

	options := []expr.Option{expr.Env(env), expr.MaxNodes(maxNodes)}
	for _, name := range disabledBuiltins {
		options = append(options, expr.DisableBuiltin(name))
	}
	options = append(options, functions()...)

	program, err := expr.Compile(rule, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return &Program{
		source:  rule,
		program: program,
		vars:    vars,
		current: opts.AllowCurrent,
	}, nil
}

func (p *Program) Source() string {
	return p.source
}

// Eval runs the rule for one source row. A nil or empty result means the
// rule produced no value. Lists and maps are rejected.
func (p *Program) Eval(row model.Row, current string) (string, bool, error) {
	env := make(map[string]any, len(p.vars)+2)
	for ident, field := range p.vars {
		env[ident] = row[field]
	}
	env[RowVar] = map[string]string(row)
	if p.current {
		env[CurrentVar] = current
	}

	out, err := expr.Run(p.program, env)
	if err != nil {
		return "", false, fmt.Errorf("failed to evaluate rule: %w", err)
	}
	s, err := format(out)
	if err != nil {
		return "", false, err
	}
	return s, s != "", nil
}

// Identifiers maps usable variable names to source fields. Fields that are not
// plain identifiers or that collide with keywords or functions are left out;
// rules reach them through row["name"].
func Identifiers(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if !identRe.MatchString(f) || keywords[f] || isFunction(f) {
			continue
		}
		out[f] = f
	}
	return out
}

// FunctionNames lists the helper functions available to rules, sorted.
func FunctionNames() []string {
	names := make([]string, 0, len(helpers))
	for _, h := range helpers {
		names = append(names, h.name)
	}
	sort.Strings(names)
	return names
}

func isFunction(name string) bool {
	if _, ok := builtin.Index[name]; ok {
		return true
	}
	for _, h := range helpers {
		if h.name == name {
			return true
		}
	}
	return false
}

func format(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	default:
		return "", fmt.Errorf("rule returned %T, want a scalar", v)
	}
}

type identFinder struct {
	name  string
	found bool
}

func (f *identFinder) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok && id.Value == f.name {
		f.found = true
	}
}
