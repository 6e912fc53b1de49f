package engine

import (
	"errors"
	"testing"
)

func evalCtx() *Context {
	return NewContext(map[string]any{
		"amount":   150,
		"currency": "EUR",
		"device": map[string]any{
			"critical": true,
			"battery":  17,
		},
	}, nil)
}

func TestEvaluate_Comparisons(t *testing.T) {
	ctx := evalCtx()

	tests := []struct {
		name     string
		expr     string
		expected any
	}{
		{"числовое сравнение", "amount > 100", true},
		{"числовое сравнение false", "amount > 200", false},
		{"сравнение строк", `currency == "EUR"`, true},
		{"dotted path", "device.battery < 20", true},
		{"булева комбинация", `amount > 100 && currency == "EUR"`, true},
		{"арифметика", "amount * 2", float64(300)},
		{"конкатенация строк", `currency + "!"`, "EUR!"},
		{"вложенный bool", "device.critical", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(tt.expr, ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestEvaluate_UnknownVariable(t *testing.T) {
	ctx := evalCtx()

	_, err := Evaluate("missing > 10", ctx)
	var evalErr *EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvalError, got %v", err)
	}
	if evalErr.Kind != EvalUnknownVariable {
		t.Errorf("expected EvalUnknownVariable, got %s", evalErr.Kind)
	}
	if evalErr.Path != "missing" {
		t.Errorf("expected path 'missing', got %q", evalErr.Path)
	}

	// Отсутствующий сегмент dotted path — тоже unknown variable
	_, err = Evaluate("device.missing == 1", ctx)
	if !errors.As(err, &evalErr) || evalErr.Kind != EvalUnknownVariable {
		t.Errorf("expected EvalUnknownVariable for missing nested path, got %v", err)
	}
}

func TestEvaluate_TypeMismatch(t *testing.T) {
	ctx := evalCtx()

	// Строка не сравнивается с числом: коэрсии нет
	_, err := Evaluate("currency > 10", ctx)
	var evalErr *EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvalError, got %v", err)
	}
	if evalErr.Kind != EvalTypeMismatch {
		t.Errorf("expected EvalTypeMismatch, got %s", evalErr.Kind)
	}
}

func TestEvaluate_Syntax(t *testing.T) {
	_, err := Evaluate("amount >", evalCtx())
	var evalErr *EvalError
	if !errors.As(err, &evalErr) || evalErr.Kind != EvalSyntax {
		t.Errorf("expected EvalSyntax, got %v", err)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	ctx := evalCtx()
	for i := 0; i < 3; i++ {
		result, err := Evaluate("amount + device.battery", ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != float64(167) {
			t.Errorf("expected 167, got %v", result)
		}
	}
	// Контекст не мутирован
	if v, _ := ctx.Lookup("amount"); v != 150 {
		t.Errorf("context mutated: amount = %v", v)
	}
}

func TestEvaluateBool(t *testing.T) {
	ctx := evalCtx()

	pass, err := EvaluateBool("amount >= 150", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pass {
		t.Error("expected true")
	}

	// Не-булев результат guard — ошибка, а не truthy
	_, err = EvaluateBool("amount + 1", ctx)
	var evalErr *EvalError
	if !errors.As(err, &evalErr) || evalErr.Kind != EvalNotBoolean {
		t.Errorf("expected EvalNotBoolean, got %v", err)
	}
}

func TestTranslateExpr(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected string
	}{
		{
			"dotted path оборачивается",
			"response.body.id == 5",
			"[response.body.id] == 5",
		},
		{
			"простой идентификатор не трогается",
			"amount > 100",
			"amount > 100",
		},
		{
			"строковый литерал не трогается",
			`name == "a.b.c"`,
			`name == "a.b.c"`,
		},
		{
			"одинарные кавычки",
			"name == 'x.y'",
			"name == 'x.y'",
		},
		{
			"уже экранированный параметр",
			"[a.b] > 1 && c.d < 2",
			"[a.b] > 1 && [c.d] < 2",
		},
		{
			"число с точкой не трогается",
			"amount > 1.5",
			"amount > 1.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := translateExpr(tt.expr); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
