package rulelang

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Surface is the set of atoms a predicate may reference, restricting the
// grammar per router kind (§3's Router(TCP)/Router(UDP) carry a restricted
// atom set; Router(L7) allows the full grammar).
type Surface int

const (
	SurfaceHTTP Surface = iota
	SurfaceTCP
	SurfaceUDP
)

var atomWeights = map[string]int{
	"Host": 1, "HostSNI": 1, "Path": 1, "PathPrefix": 1,
	"Header": 1, "Method": 1, "Query": 1, "ClientIP": 1,
	"HostRegexp": 4, "PathRegexp": 4, "HeaderRegexp": 4,
}

var allowedAtoms = map[Surface]map[string]bool{
	SurfaceHTTP: {
		"Host": true, "HostRegexp": true, "Path": true, "PathPrefix": true,
		"PathRegexp": true, "Header": true, "HeaderRegexp": true,
		"Method": true, "Query": true, "ClientIP": true,
	},
	SurfaceTCP: {"HostSNI": true, "ClientIP": true},
	SurfaceUDP: {"ClientIP": true},
}

// Predicate is a compiled rule expression ready for repeated evaluation.
type Predicate struct {
	Source     string
	Complexity int
	program    *vm.Program
}

var backtickLiteral = regexp.MustCompile("`([^`]*)`")
var atomCall = regexp.MustCompile(`\b([A-Za-z][A-Za-z0-9]*)\s*\(`)

// Compile parses and compiles a rule expression for the given surface.
// "*" matches everything unconditionally.
func Compile(expression string, surface Surface) (*Predicate, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" || expression == "*" {
		expression = "true"
	}

	src := rewriteBackticks(expression)

	allowed := allowedAtoms[surface]
	complexity := 0
	for _, m := range atomCall.FindAllStringSubmatch(expression, -1) {
		atom := m[1]
		if atom == "true" || atom == "false" {
			continue
		}
		if !allowed[atom] {
			return nil, fmt.Errorf("rule %q: atom %s is not valid on this router kind", expression, atom)
		}
		complexity += atomWeights[atom]
	}
	if complexity == 0 && src != "true" {
		complexity = len(expression)
	}

	program, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", expression, err)
	}

	return &Predicate{Source: expression, Complexity: complexity, program: program}, nil
}

// rewriteBackticks turns Traefik-style backtick string literals into
// expr-lang double-quoted literals (escaping embedded quotes/backslashes),
// so the gateway-compatible surface syntax compiles unchanged through expr.
func rewriteBackticks(expression string) string {
	return backtickLiteral.ReplaceAllStringFunc(expression, func(lit string) string {
		inner := lit[1 : len(lit)-1]
		inner = strings.ReplaceAll(inner, `\`, `\\`)
		inner = strings.ReplaceAll(inner, `"`, `\"`)
		return `"` + inner + `"`
	})
}

// Evaluate runs the compiled predicate against a request descriptor.
func (p *Predicate) Evaluate(d *Descriptor) (bool, error) {
	out, err := expr.Run(p.program, Env{d: d})
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("rule %q: expression did not evaluate to bool", p.Source)
	}
	return b, nil
}
