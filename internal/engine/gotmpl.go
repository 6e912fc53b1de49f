package engine

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"
	"text/template/parse"
)

// templateFuncs — дополнительные функции для Go шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if v != nil {
				if s, ok := v.(string); ok && s == "" {
					continue
				}
				return v
			}
		}
		return nil
	},

	// join — объединяет слайс строк
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},

	// split — разбивает строку на слайс
	"split": func(sep, s string) []string {
		return strings.Split(s, sep)
	},

	// contains — проверяет, содержит ли строка подстроку
	"contains": strings.Contains,

	// lower — приводит к нижнему регистру
	"lower": strings.ToLower,

	// upper — приводит к верхнему регистру
	"upper": strings.ToUpper,

	// trim — удаляет пробелы по краям
	"trim": strings.TrimSpace,

	// replace — заменяет подстроку
	"replace": strings.ReplaceAll,
}

// GoTemplate — движок на text/template.
//
// Шаблоны обращаются к контексту напрямую:
//
//	{{ .amount }}
//	{{ .response.body.id }}
//	{{ if .device.critical }}...{{ end }}
type GoTemplate struct{}

// NewGoTemplate создаёт движок Go шаблонов.
func NewGoTemplate() *GoTemplate {
	return &GoTemplate{}
}

// Tag возвращает тег движка.
func (g *GoTemplate) Tag() string {
	return "gotmpl"
}

// Render рендерит строковый шаблон с контекстом.
func (g *GoTemplate) Render(tmpl string, ctx *Context, strict bool) (string, error) {
	// Строка без шаблонных выражений возвращается как есть
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	missingkey := "missingkey=zero"
	if strict {
		missingkey = "missingkey=error"
	}

	t, err := template.New("").Funcs(templateFuncs).Option(missingkey).Parse(tmpl)
	if err != nil {
		return "", &RenderError{Kind: RenderEngineFailure, Engine: g.Tag(), Err: err}
	}

	data := ctx.Values()
	if !strict {
		// Контракт non-strict — пустая строка вместо неразрешённой
		// переменной, никогда частичная подстановка. Неразрешённые
		// пути шаблона заполняются в копии контекста до выполнения:
		// пост-обработка вывода исказила бы легитимные значения.
		data = fillUnresolved(t, ctx)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		if strict && strings.Contains(err.Error(), "map has no entry for key") {
			return "", &RenderError{
				Kind:   RenderUnknownVariable,
				Engine: g.Tag(),
				Path:   missingKeyFrom(err),
				Err:    err,
			}
		}
		return "", &RenderError{Kind: RenderEngineFailure, Engine: g.Tag(), Err: err}
	}

	return buf.String(), nil
}

// fillUnresolved возвращает копию контекста, в которой каждый
// неразрешённый field path шаблона заполнен пустой строкой.
// nil (JSON null) по пути считается неразрешённым.
func fillUnresolved(t *template.Template, ctx *Context) map[string]any {
	data := ctx.Snapshot()
	for _, path := range fieldPaths(t.Root) {
		fillEmpty(data, path)
	}
	return data
}

// fieldPaths собирает все field chains ({{ .a.b }}) из дерева шаблона.
func fieldPaths(node parse.Node) [][]string {
	var paths [][]string
	var walk func(parse.Node)
	walk = func(n parse.Node) {
		switch n := n.(type) {
		case *parse.ListNode:
			if n == nil {
				return
			}
			for _, c := range n.Nodes {
				walk(c)
			}
		case *parse.ActionNode:
			walk(n.Pipe)
		case *parse.IfNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.RangeNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.WithNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.TemplateNode:
			if n.Pipe != nil {
				walk(n.Pipe)
			}
		case *parse.PipeNode:
			if n == nil {
				return
			}
			for _, cmd := range n.Cmds {
				walk(cmd)
			}
		case *parse.CommandNode:
			for _, arg := range n.Args {
				walk(arg)
			}
		case *parse.FieldNode:
			paths = append(paths, n.Ident)
		case *parse.ChainNode:
			walk(n.Node)
		}
	}
	walk(node)
	return paths
}

// fillEmpty дозаполняет путь в data пустой строкой, если он не
// разрешается. Существующие значения не трогаются; путь через
// скалярную базу оставляется как есть (ошибка типов — не отсутствие).
func fillEmpty(data map[string]any, path []string) {
	cur := data
	for i, seg := range path {
		last := i == len(path)-1
		v, ok := cur[seg]
		if !ok || v == nil {
			if last {
				cur[seg] = ""
				return
			}
			next := map[string]any{}
			cur[seg] = next
			cur = next
			continue
		}
		if last {
			return
		}
		next, isMap := v.(map[string]any)
		if !isMap {
			return
		}
		cur = next
	}
}

// missingKeyFrom извлекает имя ключа из ошибки missingkey=error.
func missingKeyFrom(err error) string {
	msg := err.Error()
	const marker = `map has no entry for key "`
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return ""
	}
	rest := msg[idx+len(marker):]
	if end := strings.IndexByte(rest, '"'); end >= 0 {
		return rest[:end]
	}
	return rest
}

// RenderValue рендерит произвольное значение, рекурсивно обрабатывая
// map и slice. Используется для trigger payload'ов расписаний.
func RenderValue(engines *Engines, tag string, value any, ctx *Context, strict bool) (any, error) {
	switch v := value.(type) {
	case string:
		return engines.Render(tag, v, ctx, strict)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(engines, tag, val, ctx, strict)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(engines, tag, val, ctx, strict)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	default:
		// Скалярные типы возвращаются как есть
		return value, nil
	}
}
