package schema

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	ObjectIDPrefix   = "obj_"
	FieldTokenPrefix = "fd_"

	// id и токены становятся именами таблиц и индексов: SQL-идентификатор не длиннее 63 байт
	maxIDSlug = 40
)

var (
	nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)
	tokenRe   = regexp.MustCompile(`^fd_[a-z0-9_]{1,56}$`)

	// đ/Đ не раскладываются NFD, заменяем вручную
	letterFold = strings.NewReplacer("đ", "d", "Đ", "D", "ø", "o", "Ø", "O", "ß", "ss")
)

// Slugify: "Khách hàng" -> "khach_hang". Детерминирован; пустое имя даёт "x".
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, letterFold.Replace(strings.TrimSpace(name)))
	if err != nil {
		s = name
	}
	s = nonSlugRe.ReplaceAllString(strings.ToLower(s), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "x"
	}
	return s
}

// idSlug — Slugify, обрезанный до maxIDSlug символов.
func idSlug(name string) string {
	s := Slugify(name)
	if len(s) > maxIDSlug {
		s = strings.TrimRight(s[:maxIDSlug], "_")
	}
	return s
}

// ObjectID: obj_<slug>_<NNN>, slug обрезается.
func ObjectID(name string, suffix int) string {
	return fmt.Sprintf("%s%s_%03d", ObjectIDPrefix, idSlug(name), suffix%1000)
}

// FieldToken: fd_<slug>_<NNN>, slug обрезается.
func FieldToken(name string, suffix int) string {
	return fmt.Sprintf("%s%s_%03d", FieldTokenPrefix, idSlug(name), suffix%1000)
}

// ValidToken проверяет токен, заданный вызывающим явно.
func ValidToken(token string) bool { return tokenRe.MatchString(token) }
