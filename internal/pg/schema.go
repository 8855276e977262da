package pg

import (
	"fmt"
	"regexp"
	"strings"
)

// SequencesTable — счётчики display id, одна строка на объект.
const SequencesTable = "sequences"

var reserved = map[string]struct{}{
	"user": {}, "select": {}, "table": {}, "insert": {}, "update": {}, "delete": {},
	"where": {}, "join": {}, "group": {}, "order": {}, "limit": {}, "offset": {},
	"primary": {}, "foreign": {}, "key": {}, "constraint": {}, "default": {},
	"from": {}, "into": {}, "values": {}, "unique": {}, "index": {}, "create": {},
	"drop": {}, "alter": {}, "schema": {}, "grant": {}, "revoke": {},
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func isReserved(s string) bool { _, ok := reserved[strings.ToLower(s)]; return ok }

// safeTable: коллекция -> имя таблицы. Коллекции — машинные id, поэтому
// просто проверяем их и уводим ключевые слова под префикс.
func safeTable(collection string) (string, error) {
	t := strings.ToLower(collection)
	if !identRe.MatchString(t) {
		return "", fmt.Errorf("collection name %q is not a safe identifier", collection)
	}
	if isReserved(t) || t == SequencesTable {
		t = "e_" + t
	}
	return t, nil
}

func sqlIdent(s string) string { return `"` + strings.ToLower(s) + `"` }

func qualified(schema, tbl string) string { return sqlIdent(schema) + "." + sqlIdent(tbl) }

// BaseDDL — схема и таблица последовательностей.
func BaseDDL(schema string) map[string]string {
	return map[string]string{
		"000_schema": fmt.Sprintf("create schema if not exists %s", sqlIdent(schema)),
		"100_sequences": fmt.Sprintf(
			"create table if not exists %s (\n  \"object_id\" text primary key,\n  \"value\" bigint not null\n)",
			qualified(schema, SequencesTable)),
	}
}

// collectionDDL — документная таблица. ord держит порядок вставки для Find.
func collectionDDL(schema, tbl string) string {
	return fmt.Sprintf(
		"create table if not exists %s (\n  \"id\" text primary key,\n  \"doc\" jsonb not null,\n  \"ord\" bigserial\n)",
		qualified(schema, tbl))
}

func indexDDL(schema, tbl, field string, unique bool) (string, error) {
	f := strings.ToLower(field)
	if !identRe.MatchString(f) {
		return "", fmt.Errorf("index field %q is not a safe identifier", field)
	}
	kind, suffix := "index", "ix"
	if unique {
		kind, suffix = "unique index", "uq"
	}
	name := fmt.Sprintf("%s_%s_%s", tbl, f, suffix)
	if len(name) > 63 {
		name = name[:63]
	}
	return fmt.Sprintf("create %s if not exists %s on %s ((doc->>'%s'))",
		kind, sqlIdent(name), qualified(schema, tbl), f), nil
}
