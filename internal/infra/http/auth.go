package http

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid — токен не прошёл проверку. Клиент уходит на повторный
// логин, запрос никогда не повторяется молча.
var ErrTokenInvalid = errors.New("токен недействителен")

// Identity — подтверждённые данные пользователя из access-токена провайдера.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

type contextKey struct{}

// IdentityFromContext возвращает личность, положенную middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	return identity, ok
}

// минимальный JWK для RSA-публичного ключа
type rsaJWK struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// ParseRSAPublicKeyFromJWK парсит публичный RSA-ключ из JWK (JSON с полями kty, n, e).
// Ожидается base64url без паддинга для n и e.
func ParseRSAPublicKeyFromJWK(data []byte) (*rsa.PublicKey, error) {
	var jwk rsaJWK
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}
	if !strings.EqualFold(jwk.Kty, "rsa") {
		return nil, fmt.Errorf("unsupported jwk kty: %s", jwk.Kty)
	}
	modulusBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(jwk.N))
	if err != nil {
		return nil, fmt.Errorf("decode jwk modulus: %w", err)
	}
	exponentBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(jwk.E))
	if err != nil {
		return nil, fmt.Errorf("decode jwk exponent: %w", err)
	}
	exponent := 0
	for _, b := range exponentBytes {
		exponent = (exponent << 8) | int(b)
	}
	if exponent == 0 {
		return nil, fmt.Errorf("invalid jwk exponent")
	}
	modulus := new(big.Int).SetBytes(modulusBytes)
	if modulus.Sign() <= 0 {
		return nil, fmt.Errorf("invalid jwk modulus")
	}
	return &rsa.PublicKey{N: modulus, E: exponent}, nil
}

// TokenVerifier проверяет access-токены OIDC-провайдера. В dev-окружении
// вместо RSA-ключа допускается общий HS256-секрет.
type TokenVerifier struct {
	key    *rsa.PublicKey
	secret []byte
	issuer string
}

// NewTokenVerifier создаёт проверку токенов. jwkJSON имеет приоритет над devSecret.
func NewTokenVerifier(jwkJSON []byte, devSecret, issuer string) (*TokenVerifier, error) {
	v := &TokenVerifier{issuer: issuer}
	if len(jwkJSON) > 0 {
		key, err := ParseRSAPublicKeyFromJWK(jwkJSON)
		if err != nil {
			return nil, err
		}
		v.key = key
		return v, nil
	}
	if devSecret == "" {
		return nil, fmt.Errorf("не задан ни OIDC JWK, ни dev-секрет")
	}
	v.secret = []byte(devSecret)
	return v, nil
}

type idClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verify разбирает и проверяет токен, возвращая личность пользователя.
func (v *TokenVerifier) Verify(raw string) (Identity, error) {
	var claims idClaims
	parser := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		parser = append(parser, jwt.WithIssuer(v.issuer))
	}
	keyFunc := func(token *jwt.Token) (any, error) {
		if v.key != nil {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("неожиданный алгоритм подписи: %v", token.Header["alg"])
			}
			return v.key, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный алгоритм подписи: %v", token.Header["alg"])
		}
		return v.secret, nil
	}
	token, err := jwt.ParseWithClaims(raw, &claims, keyFunc, parser...)
	if err != nil || !token.Valid {
		return Identity{}, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return Identity{}, ErrTokenInvalid
	}
	return Identity{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// AuthMiddleware проверяет Bearer-токен и кладёт личность в контекст.
func AuthMiddleware(verifier *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				WriteError(w, http.StatusUnauthorized, ErrTokenInvalid)
				return
			}
			identity, err := verifier.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				WriteError(w, http.StatusUnauthorized, ErrTokenInvalid)
				return
			}
			ctx := context.WithValue(r.Context(), contextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}

// WriteJSON отправляет успешный JSON-ответ.
func WriteJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
