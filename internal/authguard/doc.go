// Package authguard отвечает за аутентификацию: проверку входящих
// bearer-токенов по JWKS и выдачу исходящих токенов по client
// credentials с кэшированием по scope.
package authguard
