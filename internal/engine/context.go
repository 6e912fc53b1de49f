package engine

import (
	"strings"
)

// Context — контекст выполнения run (RunContext).
//
// Изменяемое отображение имени переменной в JSON-значение.
// Засеивается defaults определения job и trigger payload, мутируется
// актором по мере того, как шаги производят результаты.
//
// Контекст принадлежит ровно одному актору — конкурентных писателей
// нет, поэтому синхронизация не нужна. Мутация шага N видна только
// шагам N+1.. .
type Context struct {
	values map[string]any
}

// NewContext создаёт контекст: defaults, поверх которых накладывается
// trigger payload (trigger выигрывает при совпадении ключей).
func NewContext(defaults, trigger map[string]any) *Context {
	values := make(map[string]any, len(defaults)+len(trigger))
	for k, v := range defaults {
		values[k] = v
	}
	for k, v := range trigger {
		values[k] = v
	}
	return &Context{values: values}
}

// Values возвращает underlying map — данные для рендеринга шаблонов.
func (c *Context) Values() map[string]any {
	return c.values
}

// Set записывает значение под top-level ключом.
func (c *Context) Set(key string, value any) {
	c.values[key] = value
}

// Delete удаляет top-level ключ.
func (c *Context) Delete(key string) {
	delete(c.values, key)
}

// Lookup разрешает dotted path ("response.body.id") в значение.
// Второй результат — false, если какой-либо сегмент пути отсутствует.
func (c *Context) Lookup(path string) (any, bool) {
	segments := strings.Split(path, ".")

	var current any = c.values
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Flatten возвращает плоское отображение dotted path → значение.
// Вложенные map разворачиваются рекурсивно; сами map-узлы тоже
// присутствуют под своим путём (для проверок вида `a.b != null`
// это не нужно, но Lookup по префиксу должен работать).
func (c *Context) Flatten() map[string]any {
	flat := make(map[string]any, len(c.values))
	flatten("", c.values, flat)
	return flat
}

func flatten(prefix string, value any, into map[string]any) {
	if m, ok := value.(map[string]any); ok {
		if prefix != "" {
			into[prefix] = m
		}
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, v, into)
		}
		return
	}
	if prefix != "" {
		into[prefix] = value
	}
}

// Snapshot возвращает глубокую копию значений контекста.
// Используется для записи final_context в RunRecord: последующие
// мутации контекста не должны менять записанный снимок.
func (c *Context) Snapshot() map[string]any {
	copied := deepCopy(c.values)
	return copied.(map[string]any)
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, val := range v {
			result[k] = deepCopy(val)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = deepCopy(val)
		}
		return result
	default:
		// Скалярные JSON значения иммутабельны
		return value
	}
}
