package version

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	pep440 "github.com/aquasecurity/go-pep440-version"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// MarkerEnv is the environment PEP 508 markers are evaluated against.
type MarkerEnv struct {
	PythonVersion                string `expr:"python_version"`
	PythonFullVersion            string `expr:"python_full_version"`
	OSName                       string `expr:"os_name"`
	SysPlatform                  string `expr:"sys_platform"`
	PlatformRelease              string `expr:"platform_release"`
	PlatformSystem               string `expr:"platform_system"`
	PlatformVersion              string `expr:"platform_version"`
	PlatformMachine              string `expr:"platform_machine"`
	PlatformPythonImplementation string `expr:"platform_python_implementation"`
	ImplementationName           string `expr:"implementation_name"`
	ImplementationVersion        string `expr:"implementation_version"`
	Extra                        string `expr:"extra"`
}

var markerVars = map[string]bool{
	"python_version": true, "python_full_version": true, "os_name": true,
	"sys_platform": true, "platform_release": true, "platform_system": true,
	"platform_version": true, "platform_machine": true,
	"platform_python_implementation": true, "implementation_name": true,
	"implementation_version": true, "extra": true,
}

// Markers evaluates environment markers for every Python minor release
// from a floor upwards on a Linux CPython host with no extras selected.
type Markers struct {
	envs []MarkerEnv
}

// maxPythonMinor bounds the Python 3 releases a marker is tried against.
const maxPythonMinor = 20

// NewMarkers builds an evaluator for Python versions >= floor ("3.9").
func NewMarkers(floor string) (*Markers, error) {
	major, minor, ok := strings.Cut(floor, ".")
	if !ok || major != "3" {
		return nil, fmt.Errorf("python floor must be 3.x, got %q", floor)
	}
	lo, err := strconv.Atoi(minor)
	if err != nil {
		return nil, fmt.Errorf("python floor %q: %w", floor, err)
	}
	m := &Markers{}
	for i := lo; i <= max(lo, maxPythonMinor); i++ {
		pv := "3." + strconv.Itoa(i)
		m.envs = append(m.envs, MarkerEnv{
			PythonVersion:                pv,
			PythonFullVersion:            pv + ".0",
			OSName:                       "posix",
			SysPlatform:                  "linux",
			PlatformSystem:               "Linux",
			PlatformMachine:              "x86_64",
			PlatformPythonImplementation: "CPython",
			ImplementationName:           "cpython",
			ImplementationVersion:        pv + ".0",
		})
	}
	return m, nil
}

// Satisfiable reports whether marker holds in at least one environment.
func (m *Markers) Satisfiable(marker string) (bool, error) {
	prog, err := CompileMarker(marker)
	if err != nil {
		return false, err
	}
	for _, env := range m.envs {
		out, err := expr.Run(prog, env)
		if err != nil {
			return false, err
		}
		if out.(bool) {
			return true, nil
		}
	}
	return false, nil
}

// CompileMarker translates a PEP 508 marker into an expr program over
// [MarkerEnv]. Each comparison becomes a call to pep508(lhs, op, rhs) so that
// version-valued operands compare by PEP 440 order.
func CompileMarker(marker string) (*vm.Program, error) {
	toks, err := lexMarker(marker)
	if err != nil {
		return nil, err
	}
	p := &markerParser{toks: toks}
	src, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("marker %q: unexpected %q", marker, p.toks[p.pos].text)
	}
	return expr.Compile(src,
		expr.Env(MarkerEnv{}),
		expr.Function("pep508", markerCompare, new(func(string, string, string) bool)),
		expr.AsBool(),
	)
}

func markerCompare(params ...any) (any, error) {
	lhs, op, rhs := params[0].(string), params[1].(string), params[2].(string)
	switch op {
	case "in":
		return strings.Contains(rhs, lhs), nil
	case "not in":
		return !strings.Contains(rhs, lhs), nil
	case "===":
		return lhs == rhs, nil
	}

	lv, lerr := pep440.Parse(lhs)
	_, rerr := pep440.Parse(strings.TrimSuffix(rhs, ".*"))
	if lerr == nil && rerr == nil {
		s, err := pep440.NewSpecifiers(op+rhs, pep440.WithPreRelease(true))
		if err == nil {
			return s.Check(lv), nil
		}
	}
	switch op {
	case "==":
		return lhs == rhs, nil
	case "!=":
		return lhs != rhs, nil
	}
	return false, nil
}

type markerTok struct {
	kind byte // 'v' variable, 's' string, 'o' operator, 'k' and/or, '(' or ')'
	text string
}

func lexMarker(s string) ([]markerTok, error) {
	var toks []markerTok
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(' || c == ')':
			toks = append(toks, markerTok{kind: c, text: string(c)})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("marker %q: unterminated string", s)
			}
			toks = append(toks, markerTok{kind: 's', text: s[i+1 : i+1+end]})
			i += end + 2
		case strings.ContainsRune("=!<>~", rune(c)):
			j := i
			for j < len(s) && strings.ContainsRune("=!<>~", rune(s[j])) {
				j++
			}
			toks = append(toks, markerTok{kind: 'o', text: s[i:j]})
			i = j
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i
			for j < len(s) && (unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j])) || s[j] == '_' || s[j] == '.') {
				j++
			}
			word := s[i:j]
			i = j
			switch word {
			case "and", "or":
				toks = append(toks, markerTok{kind: 'k', text: word})
			case "in":
				toks = append(toks, markerTok{kind: 'o', text: "in"})
			case "not":
				toks = append(toks, markerTok{kind: 'o', text: "not in"})
				for i < len(s) && s[i] == ' ' {
					i++
				}
				if !strings.HasPrefix(s[i:], "in") {
					return nil, fmt.Errorf("marker %q: expected 'in' after 'not'", s)
				}
				i += 2
			default:
				toks = append(toks, markerTok{kind: 'v', text: strings.ReplaceAll(word, ".", "_")})
			}
		default:
			return nil, fmt.Errorf("marker %q: unexpected character %q", s, c)
		}
	}
	return toks, nil
}

type markerParser struct {
	toks []markerTok
	pos  int
}

func (p *markerParser) peek() *markerTok {
	if p.pos < len(p.toks) {
		return &p.toks[p.pos]
	}
	return nil
}

func (p *markerParser) or() (string, error) {
	left, err := p.and()
	if err != nil {
		return "", err
	}
	for t := p.peek(); t != nil && t.kind == 'k' && t.text == "or"; t = p.peek() {
		p.pos++
		right, err := p.and()
		if err != nil {
			return "", err
		}
		left = "(" + left + " or " + right + ")"
	}
	return left, nil
}

func (p *markerParser) and() (string, error) {
	left, err := p.atom()
	if err != nil {
		return "", err
	}
	for t := p.peek(); t != nil && t.kind == 'k' && t.text == "and"; t = p.peek() {
		p.pos++
		right, err := p.atom()
		if err != nil {
			return "", err
		}
		left = "(" + left + " and " + right + ")"
	}
	return left, nil
}

func (p *markerParser) atom() (string, error) {
	t := p.peek()
	if t == nil {
		return "", fmt.Errorf("marker: unexpected end")
	}
	if t.kind == '(' {
		p.pos++
		inner, err := p.or()
		if err != nil {
			return "", err
		}
		if c := p.peek(); c == nil || c.kind != ')' {
			return "", fmt.Errorf("marker: missing ')'")
		}
		p.pos++
		return inner, nil
	}
	lhs, err := p.operand()
	if err != nil {
		return "", err
	}
	op := p.peek()
	if op == nil || op.kind != 'o' {
		return "", fmt.Errorf("marker: expected operator after %s", lhs)
	}
	p.pos++
	rhs, err := p.operand()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("pep508(%s, %s, %s)", lhs, strconv.Quote(op.text), rhs), nil
}

func (p *markerParser) operand() (string, error) {
	t := p.peek()
	if t == nil {
		return "", fmt.Errorf("marker: missing operand")
	}
	p.pos++
	switch t.kind {
	case 's':
		return strconv.Quote(t.text), nil
	case 'v':
		name := t.text
		if name == "python_implementation" {
			name = "platform_python_implementation"
		}
		if !markerVars[name] {
			return strconv.Quote(""), nil
		}
		return name, nil
	}
	return "", fmt.Errorf("marker: unexpected %q", t.text)
}
