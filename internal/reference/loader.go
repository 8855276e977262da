package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadCatalog читает все *.yaml/*.yml справочники из dir. Отсутствующая папка — пустой каталог.
func LoadCatalog(dir string) (Catalog, error) {
	result := make(Catalog)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		list, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		// имя справочника — из файла или из имени файла
		if list.Name == "" {
			list.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		result[list.Name] = list
	}
	return result, nil
}

// Parse разбирает один справочник.
func Parse(data []byte) (OptionList, error) {
	var list OptionList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return OptionList{}, err
	}
	for i, it := range list.Items {
		if strings.TrimSpace(it.Code) == "" {
			return OptionList{}, fmt.Errorf("item %d: empty code", i)
		}
	}
	return list, nil
}
