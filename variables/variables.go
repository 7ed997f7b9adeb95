// Package variables expands @var / {{ var }} placeholders in SQL text with
// type-aware literal escaping, per SPEC_FULL.md §4.4. It is a direct port of
// original_source/tee/parser/processing/variable_substitution.py, adapted to
// Go's regexp package.
package variables

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Values is a (possibly nested) variable map. Dot-paths in placeholders are
// resolved by descending into map[string]any values.
type Values map[string]any

var (
	atWithDefault    = regexp.MustCompile(`@(\w+(?:\.\w+)*):([^@\s]+)`)
	jinjaWithDefault = regexp.MustCompile(`\{\{\s*(\w+(?:\.\w+)*)\s*:\s*([^}]+?)\s*\}\}`)
	jinjaPlain       = regexp.MustCompile(`\{\{\s*(\w+(?:\.\w+)*)\s*\}\}`)
	jinjaFilter      = regexp.MustCompile(`\{\{\s*(\w+(?:\.\w+)*)\s*\|\s*default\(\s*'([^']*)'\s*\)\s*\}\}`)
	atReference      = regexp.MustCompile(`@(\w+(?:\.\w+)*)`)
)

// Substitute expands every recognized placeholder form in sql using values.
// If a required placeholder (no default) is missing, the SQL is returned
// unchanged, matching original_source's "abort the whole substitution"
// behavior rather than partially substituting.
func Substitute(sql string, values Values) string {
	result := sql

	result = replaceWithDefault(result, atWithDefault, values)

	if missingAt(result, values) {
		return sql
	}
	result = replaceAtBare(result, values)

	result = replaceWithDefault(result, jinjaWithDefault, values)

	if missingJinja(result, values) {
		return sql
	}
	result = replaceJinjaBare(result, values)

	result = replaceJinjaFilterDefault(result, values)

	return result
}

func replaceWithDefault(sql string, pattern *regexp.Regexp, values Values) string {
	return pattern.ReplaceAllStringFunc(sql, func(match string) string {
		sub := pattern.FindStringSubmatch(match)
		name, def := sub[1], strings.TrimSpace(sub[2])
		if v, ok := lookup(values, name); ok {
			return formatValue(v)
		}
		return formatValue(def)
	})
}

func replaceJinjaFilterDefault(sql string, values Values) string {
	return jinjaFilter.ReplaceAllStringFunc(sql, func(match string) string {
		sub := jinjaFilter.FindStringSubmatch(match)
		name, def := sub[1], sub[2]
		if v, ok := lookup(values, name); ok {
			return formatValue(v)
		}
		return formatValue(def)
	})
}

// missingAt reports whether any bare @name placeholder (without a default)
// references a variable absent from values.
func missingAt(sql string, values Values) bool {
	for _, m := range atReference.FindAllStringSubmatch(sql, -1) {
		name := m[1]
		if strings.Contains(sql, "@"+name+":") {
			continue
		}
		if _, ok := lookup(values, name); !ok {
			return true
		}
	}
	return false
}

func missingJinja(sql string, values Values) bool {
	for _, m := range jinjaPlain.FindAllStringSubmatch(sql, -1) {
		name := strings.TrimSpace(m[1])
		if _, ok := lookup(values, name); !ok {
			return true
		}
	}
	return false
}

func replaceAtBare(sql string, values Values) string {
	return atReference.ReplaceAllStringFunc(sql, func(match string) string {
		name := match[1:]
		if v, ok := lookup(values, name); ok {
			return formatValue(v)
		}
		return match
	})
}

func replaceJinjaBare(sql string, values Values) string {
	return jinjaPlain.ReplaceAllStringFunc(sql, func(match string) string {
		sub := jinjaPlain.FindStringSubmatch(match)
		name := strings.TrimSpace(sub[1])
		if v, ok := lookup(values, name); ok {
			return formatValue(v)
		}
		return match
	})
}

// Lookup resolves a dot-path against values, descending into nested
// map[string]any values. It is the exported form of the same resolution
// Substitute and Validate use internally, for callers (e.g. scriptmodel)
// that need to bind a single variable outside of SQL text.
func Lookup(values Values, path string) (any, bool) {
	return lookup(values, path)
}

// lookup resolves a dot-path against values, descending into nested
// map[string]any values.
func lookup(values Values, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(values)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// formatValue renders a Go value as a SQL literal, per SPEC_FULL.md §4.4.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32, float64:
		return strconv.FormatFloat(toFloat(val), 'f', -1, 64)
	case string:
		return quoteString(val)
	default:
		return quoteString(fmt.Sprintf("%v", val))
	}
}

func toFloat(v any) float64 {
	switch f := v.(type) {
	case float32:
		return float64(f)
	case float64:
		return f
	}
	return 0
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ValidationResult lists the variables referenced in a SQL string, the
// subset that are missing (no value and no default), and the subset of the
// supplied values that go unreferenced.
type ValidationResult struct {
	Referenced []string
	Missing    []string
	Unused     []string
}

// Validate inspects sql for every placeholder form and cross-references it
// with values, per SPEC_FULL.md §4.4.
func Validate(sql string, values Values) ValidationResult {
	referenced := map[string]bool{}
	missing := map[string]bool{}

	collect := func(name string, hasDefault bool) {
		referenced[name] = true
		if hasDefault {
			return
		}
		if _, ok := lookup(values, name); !ok {
			missing[name] = true
		}
	}

	for _, m := range atWithDefault.FindAllStringSubmatch(sql, -1) {
		collect(m[1], true)
	}
	for _, m := range atReference.FindAllStringSubmatch(sql, -1) {
		name := m[1]
		if strings.Contains(sql, "@"+name+":") {
			continue
		}
		collect(name, false)
	}
	for _, m := range jinjaWithDefault.FindAllStringSubmatch(sql, -1) {
		collect(strings.TrimSpace(m[1]), true)
	}
	for _, m := range jinjaFilter.FindAllStringSubmatch(sql, -1) {
		collect(strings.TrimSpace(m[1]), true)
	}
	for _, m := range jinjaPlain.FindAllStringSubmatch(sql, -1) {
		name := strings.TrimSpace(m[1])
		if referenced[name] {
			continue
		}
		collect(name, false)
	}

	var unused []string
	for name := range values {
		if !referenced[name] {
			unused = append(unused, name)
		}
	}

	result := ValidationResult{}
	for name := range referenced {
		result.Referenced = append(result.Referenced, name)
	}
	for name := range missing {
		result.Missing = append(result.Missing, name)
	}
	result.Unused = unused
	return result
}
