package dsl

// Object описывает объект из DSL: имя, группа (из строки `group`) и поля в порядке объявления.
type Object struct {
	Name   string
	Group  string
	Fields []Field
	Source string // файл:строка, для сообщений об ошибках
}

// Field описывает поле объекта
type Field struct {
	Name    string
	Type    string            // identity, text, select, ref и т.д.
	Options []string          // значения select[...]
	Target  string            // ref[Object] или ref[Object.field]
	Attrs   map[string]string // max=50, prefix=CT и прочие атрибуты
	Line    int
}
