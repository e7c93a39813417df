package parsing

import (
	"maps"
	"slices"
)

// FilterColumns selects the requested fields from data. A top-level key wins;
// otherwise nested maps are searched one level deep, in key order, and the
// first hit is used. Unknown names are dropped. No columns returns data as is.
func FilterColumns(data map[string]any, columns []string) map[string]any {
	if len(columns) == 0 {
		return data
	}

	nestedKeys := slices.Sorted(maps.Keys(data))

	filtered := make(map[string]any, len(columns))
	for _, col := range columns {
		if v, ok := data[col]; ok {
			filtered[col] = v
			continue
		}
		for _, key := range nestedKeys {
			nested, ok := data[key].(map[string]any)
			if !ok {
				continue
			}
			if v, ok := nested[col]; ok {
				filtered[col] = v
				break
			}
		}
	}
	return filtered
}
