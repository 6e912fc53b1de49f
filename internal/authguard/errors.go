package authguard

import "fmt"

// AuthErrorKind — классификация ошибок аутентификации.
type AuthErrorKind string

const (
	// AuthInvalidToken — токен не прошёл проверку подписи или claims.
	AuthInvalidToken AuthErrorKind = "invalid_token"

	// AuthExpired — срок действия токена истёк.
	AuthExpired AuthErrorKind = "expired"

	// AuthKeyRotation — ключ подписи не найден в кэше JWKS.
	AuthKeyRotation AuthErrorKind = "key_rotation"

	// AuthIssuance — не удалось получить исходящий токен.
	AuthIssuance AuthErrorKind = "issuance"
)

// AuthError — ошибка аутентификации с классификацией.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("auth %s", e.Kind)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func authErr(kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}
