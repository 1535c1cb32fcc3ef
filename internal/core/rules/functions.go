package rules

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/expr-lang/expr"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

type helper struct {
	name string
	fn   func(params ...any) (any, error)
	sig  any
}

var helpers = []helper{
	{"regex_replace", regexReplace, new(func(string, string, string) string)},
	{"regex_find", regexFind, new(func(string, string) string)},
	{"digits", digits, new(func(string) string)},
	{"title", title, new(func(string) string)},
	{"strip_accents", stripAccents, new(func(string) string)},
	{"normalize_space", normalizeSpace, new(func(string) string)},
	{"coalesce", coalesce, new(func(...string) string)},
	{"join_nonempty", joinNonEmpty, new(func(string, ...string) string)},
	{"merge_text", mergeText, new(func(string, string) string)},
	{"truncate", truncate, new(func(string, int) string)},
	{"default", orDefault, new(func(string, string) string)},
}

func functions() []expr.Option {
	opts := make([]expr.Option, 0, len(helpers))
	for _, h := range helpers {
		opts = append(opts, expr.Function(h.name, h.fn, h.sig))
	}
	return opts
}

var patterns sync.Map

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
	}
	patterns.Store(p, re)
	return re, nil
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func regexReplace(params ...any) (any, error) {
	re, err := compilePattern(str(params[1]))
	if err != nil {
		return nil, err
	}
	return re.ReplaceAllString(str(params[0]), str(params[2])), nil
}

// regexFind returns the first capture group when the pattern has one,
// otherwise the whole match.
func regexFind(params ...any) (any, error) {
	re, err := compilePattern(str(params[1]))
	if err != nil {
		return nil, err
	}
	m := re.FindStringSubmatch(str(params[0]))
	switch {
	case m == nil:
		return "", nil
	case len(m) > 1:
		return m[1], nil
	default:
		return m[0], nil
	}
}

func digits(params ...any) (any, error) {
	var sb strings.Builder
	for _, r := range str(params[0]) {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String(), nil
}

func title(params ...any) (any, error) {
	return cases.Title(language.Und).String(str(params[0])), nil
}

func stripAccents(params ...any) (any, error) {
	decomposed := norm.NFD.String(str(params[0]))
	var sb strings.Builder
	sb.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return norm.NFC.String(sb.String()), nil
}

func normalizeSpace(params ...any) (any, error) {
	return strings.Join(strings.Fields(str(params[0])), " "), nil
}

func coalesce(params ...any) (any, error) {
	for _, p := range params {
		if s := strings.TrimSpace(str(p)); s != "" {
			return str(p), nil
		}
	}
	return "", nil
}

func joinNonEmpty(params ...any) (any, error) {
	sep := str(params[0])
	parts := make([]string, 0, len(params)-1)
	for _, p := range params[1:] {
		if s := strings.TrimSpace(str(p)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep), nil
}

// mergeText appends incoming to current unless one already contains the other.
func mergeText(params ...any) (any, error) {
	current := strings.TrimSpace(str(params[0]))
	incoming := strings.TrimSpace(str(params[1]))
	switch {
	case incoming == "":
		return current, nil
	case current == "":
		return incoming, nil
	}
	lc, li := strings.ToLower(current), strings.ToLower(incoming)
	switch {
	case strings.Contains(lc, li):
		return current, nil
	case strings.Contains(li, lc):
		return incoming, nil
	}
	return current + "; " + incoming, nil
}

func truncate(params ...any) (any, error) {
	s := str(params[0])
	n, ok := params[1].(int)
	if !ok || n < 0 {
		return nil, fmt.Errorf("truncate: length must be a non-negative integer")
	}
	r := []rune(s)
	if len(r) <= n {
		return s, nil
	}
	return string(r[:n]), nil
}

func orDefault(params ...any) (any, error) {
	if s := str(params[0]); strings.TrimSpace(s) != "" {
		return s, nil
	}
	return str(params[1]), nil
}
