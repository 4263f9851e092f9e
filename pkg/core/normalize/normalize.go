// Package normalize turns the loosely typed answer of an external analytics
// source into canonical stats rows.
//
// The source's response shape is not fixed. Rows decides between the known
// shapes by trying an ordered list of matchers and keeping the first one that
// yields at least one valid row. Individual malformed rows are dropped; the
// rest of the batch survives.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
)

// Keys an upstream pipeline may use to wrap a single row.
var wrapperKeys = []string{"json", "payload"}

// Keys an upstream may use to carry the row list.
var listKeys = []string{"rows", "data"}

// Field names, canonical first, then the legacy names the source still emits.
var (
	dayKeys     = []string{"day", "dia"}
	slugKeys    = []string{"slug"}
	scansKeys   = []string{"scans", "escaneos"}
	uniquesKeys = []string{"uniques", "unicos"}
)

type matcher struct {
	name  string
	match func(raw any) []domain.StatsRow
}

var matchers = []matcher{
	{"rows", matchRowList},
	{"wrapped rows", matchWrappedRows},
	{"first element row list", matchFirstElementList},
	{"object row list", matchObjectList},
	{"single row", matchSingleRow},
}

// Rows extracts canonical rows from raw, which is any value produced by
// encoding/json. It never fails: unrecognized input yields an empty slice.
func Rows(raw any) []domain.StatsRow {
	rows, _ := Match(raw)
	return rows
}

// Match is Rows plus the name of the shape that matched ("" when none did).
func Match(raw any) ([]domain.StatsRow, string) {
	for _, m := range matchers {
		if rows := m.match(raw); len(rows) > 0 {
			return rows, m.name
		}
	}
	return []domain.StatsRow{}, ""
}

// [row, row, ...]
func matchRowList(raw any) []domain.StatsRow {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	return parseRows(list)
}

// [{"json": row}, {"payload": row}, ...]
func matchWrappedRows(raw any) []domain.StatsRow {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	unwrapped := make([]any, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if inner, ok := lookup(obj, wrapperKeys); ok {
			unwrapped = append(unwrapped, inner)
		}
	}
	return parseRows(unwrapped)
}

// [{"rows": [row, ...]}]
func matchFirstElementList(raw any) []domain.StatsRow {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	return matchObjectList(list[0])
}

// {"rows": [row, ...]}
func matchObjectList(raw any) []domain.StatsRow {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range listKeys {
		if list, ok := obj[key].([]any); ok {
			if rows := parseRows(list); len(rows) > 0 {
				return rows
			}
		}
	}
	return nil
}

// row
func matchSingleRow(raw any) []domain.StatsRow {
	row, ok := parseRow(raw)
	if !ok {
		return nil
	}
	return []domain.StatsRow{row}
}

func parseRows(list []any) []domain.StatsRow {
	var rows []domain.StatsRow
	for _, item := range list {
		if row, ok := parseRow(item); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func parseRow(v any) (domain.StatsRow, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return domain.StatsRow{}, false
	}

	day, ok := stringField(obj, dayKeys)
	if !ok || strings.TrimSpace(day) == "" {
		return domain.StatsRow{}, false
	}
	slug, ok := stringField(obj, slugKeys)
	if !ok {
		return domain.StatsRow{}, false
	}
	scans, ok := countField(obj, scansKeys)
	if !ok {
		return domain.StatsRow{}, false
	}
	uniques, ok := countField(obj, uniquesKeys)
	if !ok {
		return domain.StatsRow{}, false
	}

	return domain.StatsRow{Day: day, Slug: slug, Scans: scans, Uniques: uniques}, true
}

func lookup(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(obj map[string]any, keys []string) (string, bool) {
	v, ok := lookup(obj, keys)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func countField(obj map[string]any, keys []string) (int64, bool) {
	v, ok := lookup(obj, keys)
	if !ok {
		return 0, false
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	if f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// toFloat accepts native numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
