package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
	"github.com/shaiso/Relay/internal/telemetry"
)

const (
	// maxCaptureBody ограничивает размер тела ответа, сохраняемого
	// в исходе шага.
	maxCaptureBody = 256 * 1024

	// defaultCallTimeout применяется, когда ни шаг, ни job, ни
	// конфигурация не задают таймаут.
	defaultCallTimeout = 30 * time.Second
)

// TokenSource выдаёт исходящие токены для шагов с auth mode "bearer".
// Invalidate сбрасывает кэшированный токен scope: следующий Token
// получит свежий.
type TokenSource interface {
	Token(ctx context.Context, scope string) (string, error)
	Invalidate(scope string)
}

// Caller выполняет исходящие HTTP-вызовы шагов: рендерит части запроса,
// подставляет аутентификацию и захватывает ответ.
type Caller struct {
	client  *http.Client
	engines *engine.Engines
	tokens  TokenSource
}

// NewCaller создаёт исполнитель исходящих вызовов.
func NewCaller(engines *engine.Engines, tokens TokenSource) *Caller {
	return &Caller{
		// Таймаут задаётся per-call контекстом, а не клиентом.
		client:  &http.Client{},
		engines: engines,
		tokens:  tokens,
	}
}

// callResult — захваченные запрос и ответ одного вызова.
type callResult struct {
	Request  domain.RequestSnapshot
	Response domain.ResponseSnapshot
	Parsed   any
}

// renderRequest строит снимок запроса из шаблона шага.
func (c *Caller) renderRequest(step *domain.Step, runCtx *engine.Context) (*domain.RequestSnapshot, error) {
	tag := step.EngineTag()
	strict := step.IsStrict()

	url, err := c.engines.Render(tag, step.Request.URL, runCtx, strict)
	if err != nil {
		return nil, fmt.Errorf("render url: %w", err)
	}

	headers, err := c.engines.RenderMap(tag, step.Request.Headers, runCtx, strict)
	if err != nil {
		return nil, fmt.Errorf("render headers: %w", err)
	}

	body := ""
	if step.Request.Body != "" {
		body, err = c.engines.Render(tag, step.Request.Body, runCtx, strict)
		if err != nil {
			return nil, fmt.Errorf("render body: %w", err)
		}
	}

	method := strings.ToUpper(step.Request.Method)
	if method == "" {
		method = http.MethodGet
	}

	return &domain.RequestSnapshot{
		Method:  method,
		URL:     url,
		Headers: headers,
		Body:    body,
	}, nil
}

// InvalidateAuth сбрасывает кэшированный токен шага после отказа 401:
// возможно, токен отозван раньше своего expiry.
func (c *Caller) InvalidateAuth(step *domain.Step) {
	if c.tokens == nil || step.Auth == nil || step.Auth.Mode != domain.StepAuthBearer {
		return
	}
	c.tokens.Invalidate(step.Auth.Scope)
}

// injectAuth добавляет аутентификацию в заголовки запроса.
func (c *Caller) injectAuth(ctx context.Context, step *domain.Step, req *http.Request) error {
	auth := step.Auth
	if auth == nil || auth.Mode == domain.StepAuthNone {
		return nil
	}

	switch auth.Mode {
	case domain.StepAuthBearer:
		if c.tokens == nil {
			return fmt.Errorf("step %s requires bearer auth but no token source configured", step.ID)
		}
		tok, err := c.tokens.Token(ctx, auth.Scope)
		if err != nil {
			return fmt.Errorf("issue token for step %s: %w", step.ID, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	case domain.StepAuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	case domain.StepAuthHeader:
		req.Header.Set(auth.HeaderName, auth.HeaderValue)
	default:
		return fmt.Errorf("step %s: unknown auth mode %q", step.ID, auth.Mode)
	}
	return nil
}

// Call выполняет один исходящий вызов по уже отрендеренному снимку.
// Таймаут отсчитывается от context.Background: начатый запрос доводится
// до конца даже при отмене run, отмена наблюдается на границах шагов.
func (c *Caller) Call(ctx context.Context, step *domain.Step, snap *domain.RequestSnapshot, timeout time.Duration) (*callResult, error) {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var bodyReader io.Reader
	if snap.Body != "" {
		bodyReader = strings.NewReader(snap.Body)
	}

	req, err := http.NewRequestWithContext(callCtx, snap.Method, snap.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request for step %s: %w", step.ID, err)
	}
	for k, v := range snap.Headers {
		req.Header.Set(k, v)
	}
	if snap.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.injectAuth(ctx, step, req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	telemetry.OutboundDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &TransportError{StepID: step.ID, Err: err}
	}
	defer resp.Body.Close()

	captured, truncated, err := captureBody(resp.Body)
	if err != nil {
		return nil, &TransportError{StepID: step.ID, Err: fmt.Errorf("read response: %w", err)}
	}

	result := &callResult{
		Request: *snap,
		Response: domain.ResponseSnapshot{
			StatusCode: resp.StatusCode,
			Body:       captured,
			Truncated:  truncated,
		},
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, &HTTPStatusError{StepID: step.ID, StatusCode: resp.StatusCode}
	}

	result.Parsed = parseBody(captured)
	return result, nil
}

// captureBody читает тело ответа не более maxCaptureBody байт.
func captureBody(r io.Reader) (string, bool, error) {
	buf, err := io.ReadAll(io.LimitReader(r, maxCaptureBody+1))
	if err != nil {
		return "", false, err
	}
	if len(buf) > maxCaptureBody {
		return string(buf[:maxCaptureBody]), true, nil
	}
	return string(buf), false, nil
}

// parseBody пытается разобрать тело как JSON; иначе возвращает строку.
func parseBody(body string) any {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return body
}
