package waterfall

import (
	"context"
	"net/http"
	"strings"
)

// CookieName is the cookie the service reads its access token from.
const CookieName = "access_token"

type credentialKey struct{}

// WithCredential stores the caller's opaque access token in ctx. Every
// outbound call made with the returned context forwards it.
func WithCredential(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, credentialKey{}, token)
}

// CredentialFrom returns the access token stored by WithCredential.
func CredentialFrom(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(credentialKey{}).(string)
	return token, ok && token != ""
}

// CredentialFromRequest extracts the access token of an inbound request:
// the access_token cookie first, then a Bearer authorization header.
func CredentialFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// applyCredential forwards the token as a bearer header and as the
// access_token cookie.
func applyCredential(ctx context.Context, req *http.Request) {
	token, ok := CredentialFrom(ctx)
	if !ok {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
}
