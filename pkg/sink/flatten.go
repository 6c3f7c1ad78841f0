package sink

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Sternrassler/callrail-extractor/pkg/normalize"
	"github.com/goccy/go-json"
)

// Table is a record set rendered as strings under a fixed header.
type Table struct {
	Header []string
	Rows   [][]string
}

// Flatten renders one record as flat string cells. Nested objects become
// parent_child keys, lists of scalars are joined with ", ", lists holding
// objects are rendered as JSON and nil becomes "".
func Flatten(rec normalize.Record) map[string]string {
	out := make(map[string]string, len(rec))
	for key, value := range rec {
		flattenInto(out, key, value)
	}
	return out
}

// BuildTable flattens records under the declared columns. A column holding
// nested objects expands into its flattened sub-columns, in first-seen order.
// Without declared columns the sorted union of record keys is used.
func BuildTable(records []normalize.Record, columns []string) Table {
	if len(columns) == 0 {
		columns = recordKeys(records)
	}

	type expansion struct {
		keys []string
		seen map[string]struct{}
	}
	expanded := make([]expansion, len(columns))
	for i := range expanded {
		expanded[i].seen = map[string]struct{}{}
	}

	flat := make([]map[string]string, len(records))
	for r, rec := range records {
		row := make(map[string]string)
		for i, col := range columns {
			value, ok := rec[col]
			if !ok {
				continue
			}
			cell := make(map[string]string)
			flattenInto(cell, col, value)
			for _, k := range sortedKeys(cell) {
				row[k] = cell[k]
				if _, dup := expanded[i].seen[k]; !dup {
					expanded[i].seen[k] = struct{}{}
					expanded[i].keys = append(expanded[i].keys, k)
				}
			}
		}
		flat[r] = row
	}

	var header []string
	used := make(map[string]struct{})
	add := func(k string) {
		if _, dup := used[k]; dup {
			return
		}
		used[k] = struct{}{}
		header = append(header, k)
	}
	for i, col := range columns {
		if len(expanded[i].keys) == 0 {
			add(col)
			continue
		}
		for _, k := range expanded[i].keys {
			add(k)
		}
	}

	rows := make([][]string, len(flat))
	for r, row := range flat {
		cells := make([]string, len(header))
		for c, k := range header {
			cells[c] = row[k]
		}
		rows[r] = cells
	}
	return Table{Header: header, Rows: rows}
}

func flattenInto(out map[string]string, key string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for child, cv := range v {
			flattenInto(out, key+"_"+child, cv)
		}
	case []any:
		out[key] = renderList(v)
	default:
		out[key] = scalar(v)
	}
}

func renderList(list []any) string {
	if len(list) == 0 {
		return ""
	}
	for _, item := range list {
		switch item.(type) {
		case map[string]any, []any:
			b, err := json.Marshal(list)
			if err != nil {
				return fmt.Sprint(list)
			}
			return string(b)
		}
	}
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = scalar(item)
	}
	return strings.Join(parts, ", ")
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

func recordKeys(records []normalize.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
