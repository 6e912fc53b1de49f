package engine

import (
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
)

// Rule evaluator — вычисляет guard и extract выражения против
// снимка контекста.
//
// Выражения side-effect-free и детерминированы: одинаковый контекст
// даёт одинаковый результат, контекст никогда не мутируется.
//
// Поддерживаются: арифметика, сравнения, булевы комбинаторы,
// конкатенация строк и обращение к переменным по dotted path
// ("response.body.id"). Отсутствующая переменная — ошибка
// EvalUnknownVariable, а не молчаливый default: политика "пропустить
// шаг или уронить run" принадлежит актору, не evaluator'у.

// dottedVar находит dotted идентификаторы вне строковых литералов.
// Не совпадает с числами (1.5) — первый сегмент начинается с буквы.
var dottedVar = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)+`)

// Evaluate вычисляет выражение и возвращает его значение.
func Evaluate(expr string, ctx *Context) (any, error) {
	parsed, err := govaluate.NewEvaluableExpression(translateExpr(expr))
	if err != nil {
		return nil, &EvalError{Kind: EvalSyntax, Expr: expr, Err: err}
	}

	flat := ctx.Flatten()

	// Все переменные должны разрешаться до вычисления:
	// так отсутствие переменной отличимо от ошибки типов.
	for _, name := range parsed.Vars() {
		if _, ok := flat[name]; !ok {
			return nil, &EvalError{Kind: EvalUnknownVariable, Expr: expr, Path: name}
		}
	}

	result, err := parsed.Evaluate(normalizeParams(flat, parsed.Vars()))
	if err != nil {
		return nil, &EvalError{Kind: EvalTypeMismatch, Expr: expr, Err: err}
	}

	return result, nil
}

// EvaluateBool вычисляет guard-выражение.
// Не-булев результат — ошибка EvalNotBoolean: guard никогда
// не интерпретирует "truthy" значения.
func EvaluateBool(expr string, ctx *Context) (bool, error) {
	result, err := Evaluate(expr, ctx)
	if err != nil {
		return false, err
	}

	b, ok := result.(bool)
	if !ok {
		return false, &EvalError{Kind: EvalNotBoolean, Expr: expr}
	}
	return b, nil
}

// translateExpr оборачивает dotted идентификаторы в [скобки] —
// синтаксис экранированных параметров govaluate. Без этого "a.b"
// парсится как доступ к полю структуры. Строковые литералы
// не затрагиваются.
func translateExpr(expr string) string {
	var out strings.Builder
	out.Grow(len(expr))

	inString := false
	var quote byte
	start := 0

	flush := func(end int) {
		out.WriteString(dottedVar.ReplaceAllString(expr[start:end], "[$0]"))
	}

	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case inString:
			if c == quote && (i == 0 || expr[i-1] != '\\') {
				inString = false
				out.WriteString(expr[start : i+1])
				start = i + 1
			}
		case c == '\'' || c == '"':
			flush(i)
			inString = true
			quote = c
			start = i
		case c == '[':
			// Уже экранированный параметр — копируем как есть.
			flush(i)
			end := strings.IndexByte(expr[i:], ']')
			if end < 0 {
				end = len(expr) - i - 1
			}
			out.WriteString(expr[i : i+end+1])
			i += end
			start = i + 1
		}
	}
	if start < len(expr) {
		if inString {
			out.WriteString(expr[start:])
		} else {
			flush(len(expr))
		}
	}

	return out.String()
}

// normalizeParams приводит числовые значения к float64 —
// единственному числовому типу govaluate — и отбирает только
// используемые переменные.
func normalizeParams(flat map[string]any, vars []string) map[string]any {
	params := make(map[string]any, len(vars))
	for _, name := range vars {
		params[name] = normalizeNumber(flat[name])
	}
	return params
}

func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
