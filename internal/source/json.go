package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/tabular"
)

// loadJSON accepts an array of objects, or an object holding one under
// "transactions" (or any single array-valued key).
func loadJSON(raw []byte) (*Content, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", common.ErrContentUnavailable, err)
	}

	records, ok := findRecords(root)
	if !ok {
		return nil, fmt.Errorf("%w: JSON holds no array of transaction objects", common.ErrContentUnavailable)
	}

	keySet := make(map[string]bool)
	for _, r := range records {
		for k := range r {
			keySet[k] = true
		}
	}
	headers := make([]string, 0, len(keySet))
	for k := range keySet {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	table := &tabular.Table{Headers: headers}
	for _, r := range records {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = cellString(r[h])
		}
		table.Rows = append(table.Rows, row)
	}

	return &Content{Table: table, Text: renderTable(table)}, nil
}

func findRecords(root any) ([]map[string]any, bool) {
	switch v := root.(type) {
	case []any:
		return objects(v)
	case map[string]any:
		for _, key := range []string{"transactions", "Transactions", "data", "items"} {
			if arr, ok := v[key].([]any); ok {
				return objects(arr)
			}
		}
		var only []any
		arrays := 0
		for _, val := range v {
			if arr, ok := val.([]any); ok {
				only = arr
				arrays++
			}
		}
		if arrays == 1 {
			return objects(only)
		}
	}
	return nil, false
}

func objects(arr []any) ([]map[string]any, bool) {
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out, len(out) > 0
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
