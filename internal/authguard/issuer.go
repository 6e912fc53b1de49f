package authguard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shaiso/Relay/internal/telemetry"
)

// expirySkew — запас до истечения токена, после которого кэшированный
// токен считается протухшим и запрашивается новый.
const expirySkew = 60 * time.Second

type cachedToken struct {
	value     string
	expiresAt time.Time
}

func (t cachedToken) fresh(now time.Time) bool {
	return t.value != "" && now.Before(t.expiresAt.Add(-expirySkew))
}

// Issuer выдаёт исходящие токены по client credentials.
// Токены кэшируются по scope и обновляются с запасом expirySkew.
type Issuer struct {
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client

	mu    sync.RWMutex
	cache map[string]cachedToken

	group singleflight.Group
}

// IssuerConfig — параметры получения исходящих токенов.
type IssuerConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// NewIssuer создаёт issuer исходящих токенов.
func NewIssuer(cfg IssuerConfig) *Issuer {
	return &Issuer{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       &http.Client{Timeout: 10 * time.Second},
		cache:        map[string]cachedToken{},
	}
}

// Token возвращает access token для scope. Параллельные запросы одного
// scope совмещаются, каждый получает свежий токен из кэша.
func (i *Issuer) Token(ctx context.Context, scope string) (string, error) {
	i.mu.RLock()
	cached := i.cache[scope]
	i.mu.RUnlock()
	if cached.fresh(time.Now()) {
		return cached.value, nil
	}

	v, err, _ := i.group.Do(scope, func() (any, error) {
		i.mu.RLock()
		cached := i.cache[scope]
		i.mu.RUnlock()
		if cached.fresh(time.Now()) {
			return cached.value, nil
		}

		reason := "miss"
		if cached.value != "" {
			reason = "expired"
		}

		tok, expiresIn, err := i.request(ctx, scope)
		if err != nil {
			return "", authErr(AuthIssuance, err)
		}

		i.mu.Lock()
		i.cache[scope] = cachedToken{
			value:     tok,
			expiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second),
		}
		i.mu.Unlock()

		telemetry.TokenRefreshes.WithLabelValues(reason).Inc()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (i *Issuer) request(ctx context.Context, scope string) (string, int64, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {i.clientID},
		"client_secret": {i.clientSecret},
	}
	if scope != "" {
		form.Set("scope", scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned empty access_token")
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = 300
	}
	return tr.AccessToken, tr.ExpiresIn, nil
}

// Invalidate сбрасывает кэшированный токен scope, например после 401
// от целевого сервиса.
func (i *Issuer) Invalidate(scope string) {
	i.mu.Lock()
	delete(i.cache, scope)
	i.mu.Unlock()
}
