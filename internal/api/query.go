package api

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"recordkit/internal/schema"
)

type SortKey struct {
	Field string
	Desc  bool
}

type ListParams struct {
	Limit   int
	Offset  int
	Sort    []SortKey
	Filters map[string]any
	Nulls   string // "last" (default) | "first"
}

// parseListParams: limit/offset/sort/nulls, остальные ключи — фильтры по токенам полей.
func parseListParams(q url.Values) ListParams {
	limit := 50
	lv := q.Get("_limit")
	if lv == "" {
		lv = q.Get("limit")
	}
	if lv != "" {
		if n, err := strconv.Atoi(lv); err == nil && n >= 0 && n <= 1000 {
			limit = n
		}
	}

	offset := 0
	ov := q.Get("_offset")
	if ov == "" {
		ov = q.Get("offset")
	}
	if ov != "" {
		if n, err := strconv.Atoi(ov); err == nil && n >= 0 {
			offset = n
		}
	}

	var sortKeys []SortKey
	sv := strings.TrimSpace(q.Get("_sort"))
	if sv == "" {
		sv = strings.TrimSpace(q.Get("sort"))
	}
	for _, p := range strings.Split(sv, ",") {
		p = strings.TrimSpace(p)
		desc := strings.HasPrefix(p, "-")
		p = strings.TrimLeft(p, "+-")
		if p != "" {
			sortKeys = append(sortKeys, SortKey{Field: p, Desc: desc})
		}
	}

	nulls := strings.ToLower(strings.TrimSpace(q.Get("nulls")))
	if nulls != "first" && nulls != "last" {
		nulls = "last"
	}

	filters := make(map[string]any)
	for key, vals := range q {
		switch key {
		case "offset", "limit", "sort", "_offset", "_limit", "_sort", "nulls":
			continue
		}
		for _, v := range vals {
			if strings.TrimSpace(v) != "" {
				filters[key] = v
			}
		}
	}

	return ListParams{Limit: limit, Offset: offset, Sort: sortKeys, Filters: filters, Nulls: nulls}
}

func (lp ListParams) page(n int) (start, end int) {
	start = min(max(lp.Offset, 0), n)
	end = min(start+lp.Limit, n)
	return start, end
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case schema.Ref:
		return t.RefTo
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func isNull(v any, ok bool) bool { return !ok || v == nil }

// cmpByKey сравнивает две записи по полю с учётом nulls и направления.
// Числа сравниваются как числа, остальное — строками.
func cmpByKey(a, b schema.Record, key string, nullsPolicy string, desc bool) int {
	va, oka := a.Values[key]
	vb, okb := b.Values[key]

	na := isNull(va, oka)
	nb := isNull(vb, okb)
	if na && nb {
		return 0
	}
	if na != nb {
		// nulls не зависят от направления
		if (nullsPolicy == "last") == na {
			return +1
		}
		return -1
	}

	rel := 0
	fa, aNum := toNumber(va)
	fb, bNum := toNumber(vb)
	if aNum && bNum {
		switch {
		case fa < fb:
			rel = -1
		case fa > fb:
			rel = +1
		}
	} else {
		rel = strings.Compare(toString(va), toString(vb))
	}
	if desc {
		rel = -rel
	}
	return rel
}

func sortRecords(records []schema.Record, keys []SortKey, nullsPolicy string) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, k := range keys {
			if c := cmpByKey(records[i], records[j], k.Field, nullsPolicy, k.Desc); c != 0 {
				return c < 0
			}
		}
		return false
	})
}
