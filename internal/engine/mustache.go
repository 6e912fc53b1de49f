package engine

import (
	"strings"

	"github.com/cbroglie/mustache"
)

// Mustache — движок на mustache шаблонах.
//
// Альтернативный синтаксис для авторов jobs:
//
//	{{amount}}
//	{{response.body.id}}
//	{{#device.critical}}...{{/device.critical}}
//
// mustache сам по себе подставляет пустую строку вместо отсутствующей
// переменной; strict режим реализован проверкой тегов распарсенного
// шаблона против контекста до рендеринга (переключатель
// AllowMissingVariables в библиотеке глобальный и потому не годится
// для конкурентных рендеров).
type Mustache struct{}

// NewMustache создаёт mustache движок.
func NewMustache() *Mustache {
	return &Mustache{}
}

// Tag возвращает тег движка.
func (m *Mustache) Tag() string {
	return "mustache"
}

// Render рендерит шаблон с контекстом.
func (m *Mustache) Render(tmpl string, ctx *Context, strict bool) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	parsed, err := mustache.ParseString(tmpl)
	if err != nil {
		return "", &RenderError{Kind: RenderEngineFailure, Engine: m.Tag(), Err: err}
	}

	if strict {
		if missing := m.findMissing(parsed.Tags(), ctx); missing != "" {
			return "", &RenderError{
				Kind:   RenderUnknownVariable,
				Engine: m.Tag(),
				Path:   missing,
			}
		}
	}

	out, err := parsed.Render(ctx.Values())
	if err != nil {
		return "", &RenderError{Kind: RenderEngineFailure, Engine: m.Tag(), Err: err}
	}

	return out, nil
}

// findMissing возвращает первый неразрешимый variable-тег.
//
// Переменные внутри секций проверяются против корня контекста:
// section-scoped имена ("." и имена полей элементов списка)
// пропускаются — их разрешимость зависит от данных секции.
func (m *Mustache) findMissing(tags []mustache.Tag, ctx *Context) string {
	for _, tag := range tags {
		switch tag.Type() {
		case mustache.Variable:
			name := tag.Name()
			if name == "." {
				continue
			}
			if _, ok := ctx.Lookup(name); !ok {
				return name
			}

		case mustache.Section:
			// Имя секции должно разрешаться; переменные внутри секции
			// разрешаются её данными и здесь не проверяются.
			if _, ok := ctx.Lookup(tag.Name()); !ok {
				return tag.Name()
			}

		case mustache.InvertedSection:
			// Для inverted секции отсутствие значения легитимно.
		}
	}
	return ""
}
