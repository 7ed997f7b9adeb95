package sqlast

import (
	"strconv"
	"strings"
)

// datatypeSubstrings maps a substring token (checked case-insensitively
// against a projection's expression text) to its inferred logical type,
// per SPEC_FULL.md §4.9. Order matters: earlier entries are checked first.
var datatypeSubstrings = []struct {
	substr   string
	datatype string
}{
	{"INT", "number"},
	{"BIGINT", "number"},
	{"INTEGER", "number"},
	{"FLOAT", "number"},
	{"DOUBLE", "number"},
	{"DECIMAL", "number"},
	{"NUMERIC", "number"},
	{"TEXT", "string"},
	{"VARCHAR", "string"},
	{"CHAR", "string"},
	{"STRING", "string"},
	{"DATE", "date"},
	{"TIMESTAMP", "date"},
	{"TIME", "date"},
	{"BOOL", "boolean"},
}

// InferredColumn is one column inferred from a SELECT projection.
type InferredColumn struct {
	Name     string
	Datatype string
}

// InferProjectionSchema inspects the projection list of a top-level SELECT
// statement and heuristically infers each column's name and datatype,
// per SPEC_FULL.md §4.9. It is used only when a transformation has no
// explicitly declared schema.
func InferProjectionSchema(sql string) []InferredColumn {
	projection, ok := topLevelProjection(sql)
	if !ok {
		return nil
	}

	parts := splitTopLevelCommas(projection)
	cols := make([]InferredColumn, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cols = append(cols, InferredColumn{
			Name:     projectionAlias(part, i),
			Datatype: inferDatatype(part),
		})
	}
	return cols
}

func topLevelProjection(sql string) (string, bool) {
	upper := strings.ToUpper(sql)
	selectIdx := strings.Index(upper, "SELECT")
	if selectIdx < 0 {
		return "", false
	}
	rest := sql[selectIdx+len("SELECT"):]
	upperRest := upper[selectIdx+len("SELECT"):]

	depth := 0
	for i, r := range rest {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && hasWordAt(upperRest, i, "FROM") {
			return rest[:i], true
		}
	}
	return rest, true
}

func hasWordAt(s string, i int, word string) bool {
	if i+len(word) > len(s) {
		return false
	}
	if s[i:i+len(word)] != word {
		return false
	}
	if i > 0 && isWordByte(s[i-1]) {
		return false
	}
	end := i + len(word)
	if end < len(s) && isWordByte(s[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// projectionAlias returns the column's display name: the text after "AS",
// or the final dotted segment of a bare column reference, or a positional
// fallback "col_N".
func projectionAlias(expr string, index int) string {
	upper := strings.ToUpper(expr)
	if idx := strings.LastIndex(upper, " AS "); idx >= 0 {
		return strings.TrimSpace(expr[idx+4:])
	}
	fields := strings.Fields(expr)
	if len(fields) == 1 {
		name := fields[0]
		if dot := strings.LastIndex(name, "."); dot >= 0 {
			name = name[dot+1:]
		}
		if isSimpleIdentifier(name) {
			return name
		}
	}
	if len(fields) > 1 {
		last := fields[len(fields)-1]
		if isSimpleIdentifier(last) {
			return last
		}
	}
	return columnFallbackName(index)
}

func isSimpleIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

func columnFallbackName(index int) string {
	return "col_" + strconv.Itoa(index+1)
}

func inferDatatype(expr string) string {
	upper := strings.ToUpper(expr)
	for _, dt := range datatypeSubstrings {
		if strings.Contains(upper, dt.substr) {
			return dt.datatype
		}
	}
	return "string"
}
