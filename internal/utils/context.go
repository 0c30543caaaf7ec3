package utils

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// CustomContext carries request-scoped identity through to every
// repository and tracing call without a package-level singleton.
type CustomContext struct {
	Account   string
	SessionId string
}

var customContextKey = "CUSTOM_CONTEXT"

func WithContext(customContext *CustomContext, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestWithCtx := r.WithContext(context.WithValue(r.Context(), customContextKey, customContext))
		next.ServeHTTP(w, requestWithCtx)
	})
}

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context) context.Context {
	customContext := &CustomContext{
		Account:   c.GetString("account"),
		SessionId: c.GetString("mcpSessionId"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAccountFromContext(ctx context.Context) string {
	return GetContext(ctx).Account
}

func GetSessionIdFromContext(ctx context.Context) string {
	return GetContext(ctx).SessionId
}

func SetAccountInContext(ctx context.Context, account string) context.Context {
	customContext := GetContext(ctx)
	customContext.Account = account
	return WithCustomContext(ctx, customContext)
}

func ValidateAccount(ctx context.Context) error {
	if GetAccountFromContext(ctx) == "" {
		return errors.New("account is missing")
	}
	return nil
}
