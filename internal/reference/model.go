package reference

import "sort"

// OptionList — именованный справочник значений для полей типа select.
type OptionList struct {
	Name  string       `yaml:"name"`
	Items []OptionItem `yaml:"items"`
}

type OptionItem struct {
	Code  string `yaml:"code"`
	Label string `yaml:"label,omitempty"`
	Order int    `yaml:"order,omitempty"`
}

// Catalog: имя справочника -> список.
type Catalog map[string]OptionList

// Options возвращает коды справочника в порядке Order (при равенстве — как в файле).
func (c Catalog) Options(name string) ([]string, bool) {
	l, ok := c[name]
	if !ok {
		return nil, false
	}
	items := append([]OptionItem(nil), l.Items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Code)
	}
	return out, true
}
