package session

import (
	"context"

	"github.com/meetd-personal/go-session/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use session helpers directly.
type ValidationListener = jwtware.ValidationListener

// NewMiddlewareTokenValidator adapts a TokenService for the JWT middleware.
func NewMiddlewareTokenValidator(tokens TokenService) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(raw string) (jwtware.SessionClaims, error) {
		claims, err := tokens.Validate(raw)
		if err != nil {
			return nil, err
		}
		return claims, nil
	})
}

// ContextEnricherAdapter stores validated claims in the standard context so
// downstream handlers can use GetClaims and Can.
func ContextEnricherAdapter(c context.Context, claims jwtware.SessionClaims) context.Context {
	sessionClaims, ok := claims.(*SessionClaims)
	if !ok {
		return c
	}
	return WithClaimsContext(c, sessionClaims)
}
