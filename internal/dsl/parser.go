package dsl

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	objectRe = regexp.MustCompile(`^object\s+(.+?)\s*:$`)
	fieldRe  = regexp.MustCompile(`^([\w_]+):\s*([^\s#]+)(.*)$`)
	selectRe = regexp.MustCompile(`^select\[(.*)\]$`)
	refRe    = regexp.MustCompile(`^ref\[([\p{L}\p{N}_ .]+)\]$`)
	groupRe  = regexp.MustCompile(`^group\s+([A-Za-z0-9_.-]+)$`)
)

// splitOptionTokens делит "prefix=CT sep='/'" на токены, не рвёт по пробелам внутри кавычек и [...]
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false
	bracketDepth := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble && bracketDepth == 0 {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle && bracketDepth == 0 {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		case '[':
			if !inSingle && !inDouble {
				bracketDepth++
			}
			buf = append(buf, r)
		case ']':
			if !inSingle && !inDouble && bracketDepth > 0 {
				bracketDepth--
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t' || r == ',') && !inSingle && !inDouble && bracketDepth == 0 {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

// stripComment срезает # вне кавычек и скобок.
func stripComment(s string) string {
	inSingle, inDouble, depth := false, false, 0
	for i, r := range s {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case r == '[' && !inSingle && !inDouble:
			depth++
		case r == ']' && !inSingle && !inDouble && depth > 0:
			depth--
		case r == '#' && !inSingle && !inDouble && depth == 0:
			return strings.TrimSpace(s[:i])
		}
	}
	return strings.TrimSpace(s)
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' && v[len(v)-1] == '"' || v[0] == '\'' && v[len(v)-1] == '\'') {
		return v[1 : len(v)-1]
	}
	return v
}

// Parse читает объекты из DSL. name используется только в сообщениях об ошибках.
func Parse(r io.Reader, name string) ([]*Object, error) {
	var (
		objects []*Object
		current *Object
		group   string
		lineNo  int
	)
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%s:%d: %s", name, lineNo, fmt.Sprintf(format, args...))
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		if m := groupRe.FindStringSubmatch(line); m != nil {
			group = m[1]
			continue
		}
		if m := objectRe.FindStringSubmatch(line); m != nil {
			current = &Object{Name: m[1], Group: group, Source: fmt.Sprintf("%s:%d", name, lineNo)}
			objects = append(objects, current)
			continue
		}
		if current == nil {
			return nil, fail("field outside of an object block: %q", line)
		}

		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fail("cannot parse line %q", line)
		}
		f, err := parseField(m[1], m[2], m[3])
		if err != nil {
			return nil, fail("%s: %v", m[1], err)
		}
		f.Line = lineNo
		for _, prev := range current.Fields {
			if strings.EqualFold(prev.Name, f.Name) {
				return nil, fail("duplicate field %q in %s", f.Name, current.Name)
			}
		}
		current.Fields = append(current.Fields, f)
	}
	return objects, scanner.Err()
}

func parseField(name, rawType, tail string) (Field, error) {
	// select[a, b] с пробелами внутри режется регэкспом типа — склеиваем обратно
	if strings.Contains(rawType, "[") && !strings.Contains(rawType, "]") {
		idx := strings.Index(tail, "]")
		if idx < 0 {
			return Field{}, fmt.Errorf("unclosed [ in type %q", rawType)
		}
		rawType += tail[:idx+1]
		tail = tail[idx+1:]
	}

	f := Field{Name: name, Type: strings.ToLower(rawType), Attrs: map[string]string{}}
	if mm := selectRe.FindStringSubmatch(rawType); mm != nil {
		f.Type = "select"
		for _, p := range strings.Split(mm[1], ",") {
			if s := unquote(strings.TrimSpace(p)); s != "" {
				f.Options = append(f.Options, s)
			}
		}
	} else if mm := refRe.FindStringSubmatch(rawType); mm != nil {
		f.Type = "ref"
		f.Target = strings.TrimSpace(mm[1])
	}

	for _, tok := range splitOptionTokens(strings.TrimSpace(tail)) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return Field{}, fmt.Errorf("attribute %q must be key=value", tok)
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			return Field{}, fmt.Errorf("empty attribute name in %q", tok)
		}
		f.Attrs[k] = unquote(strings.TrimSpace(v))
	}
	return f, nil
}

// LoadFile разбирает один .dsl файл.
func LoadFile(path string) ([]*Object, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file, path)
}

// LoadAll обходит root и собирает объекты из всех *.dsl. Имена объектов уникальны по всему дереву.
func LoadAll(root string) ([]*Object, error) {
	var result []*Object
	seen := map[string]string{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".dsl") {
			return nil
		}
		objs, err := LoadFile(path)
		if err != nil {
			return err
		}
		for _, o := range objs {
			key := strings.ToLower(o.Name)
			if prev, exists := seen[key]; exists {
				return fmt.Errorf("duplicate object %q at %s (first defined at %s)", o.Name, o.Source, prev)
			}
			seen[key] = o.Source
			result = append(result, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
