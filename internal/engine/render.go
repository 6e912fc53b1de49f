package engine

import "fmt"

// Renderer — движок рендеринга шаблонов.
//
// Рендеринг чистый: без I/O и без мутации контекста. Неразрешённая
// переменная — ошибка RenderUnknownVariable; strict=false — единственный
// способ подавить её (подстановкой пустой строки, никогда частичной).
//
// Два взаимозаменяемых движка за одним интерфейсом — сознательная
// точка расширения: авторы jobs выбирают синтаксис тегом шага.
type Renderer interface {
	// Tag возвращает тег движка ("gotmpl", "mustache").
	Tag() string

	// Render рендерит шаблон против контекста.
	Render(tmpl string, ctx *Context, strict bool) (string, error)
}

// Engines — реестр движков по тегу.
type Engines struct {
	renderers map[string]Renderer
}

// NewEngines создаёт реестр со стандартными движками.
func NewEngines() *Engines {
	e := &Engines{renderers: make(map[string]Renderer)}
	e.Register(NewGoTemplate())
	e.Register(NewMustache())
	return e
}

// Register добавляет движок в реестр.
func (e *Engines) Register(r Renderer) {
	e.renderers[r.Tag()] = r
}

// Get возвращает движок по тегу.
func (e *Engines) Get(tag string) (Renderer, error) {
	r, ok := e.renderers[tag]
	if !ok {
		return nil, &RenderError{Kind: RenderUnknownEngine, Engine: tag}
	}
	return r, nil
}

// Render рендерит шаблон движком с указанным тегом.
func (e *Engines) Render(tag, tmpl string, ctx *Context, strict bool) (string, error) {
	r, err := e.Get(tag)
	if err != nil {
		return "", err
	}
	return r.Render(tmpl, ctx, strict)
}

// RenderMap рендерит map шаблонов (заголовки запроса).
func (e *Engines) RenderMap(tag string, tmpls map[string]string, ctx *Context, strict bool) (map[string]string, error) {
	if tmpls == nil {
		return nil, nil
	}

	result := make(map[string]string, len(tmpls))
	for key, tmpl := range tmpls {
		rendered, err := e.Render(tag, tmpl, ctx, strict)
		if err != nil {
			return nil, fmt.Errorf("header %q: %w", key, err)
		}
		result[key] = rendered
	}
	return result, nil
}
