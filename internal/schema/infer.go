package schema

import (
	"strings"

	"github.com/agenthands/intabular/internal/core/model"
)

// DefaultColumns is used when a schema is inferred without a header.
var DefaultColumns = []string{"email", "first_name", "last_name", "company", "title", "phone", "website"}

// identity weights for well-known column names
var knownIdentity = []struct {
	match  func(name string) bool
	weight float64
}{
	{func(n string) bool { return n == "email" || strings.HasSuffix(n, "_email") || n == "id" || strings.HasSuffix(n, "_id") }, 1.0},
	{func(n string) bool { return strings.Contains(n, "phone") || strings.Contains(n, "mobile") || strings.Contains(n, "linkedin") }, 0.8},
	{func(n string) bool { return n == "website" || n == "domain" || n == "url" }, 0.5},
	{func(n string) bool { return strings.Contains(n, "name") }, 0.5},
}

// Infer builds a starting schema from a table header. Well-known identifying
// columns become entity identifiers; everything else is descriptive. The
// result is meant to be reviewed and edited before use.
func Infer(headers []string, purpose string) *model.TargetSchema {
	if len(headers) == 0 {
		headers = DefaultColumns
	}
	s := &model.TargetSchema{Purpose: purpose, SampleRows: 5}
	for _, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h))
		c := model.Column{Name: h, ColumnSpec: model.ColumnSpec{Description: humanize(name)}}
		for _, k := range knownIdentity {
			if k.match(name) {
				c.IsEntityIdentifier = true
				c.IdentityIndication = k.weight
				break
			}
		}
		s.Columns = append(s.Columns, c)
	}
	return s
}

func humanize(name string) string {
	s := strings.Join(strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' }), " ")
	if s == "" {
		return name
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
