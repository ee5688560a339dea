package utils

import (
	"context"

	"bitbucket.org/imfsl/ledger_backend/appctx"
)

// Alias the shared context key type so existing code keeps working.
type contextKey = appctx.ContextKey

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyAdminSubject  = appctx.ContextKeyAdminSubject
	ContextKeySystemCode    = appctx.ContextKeySystemCode
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetAdminSubjectFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyAdminSubject)
}

func GetSystemCodeFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeySystemCode)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetAdminSubjectInContext(ctx context.Context, subject string) context.Context {
	return appctx.Set(ctx, ContextKeyAdminSubject, subject)
}

func SetSystemCodeInContext(ctx context.Context, systemCode string) context.Context {
	return appctx.Set(ctx, ContextKeySystemCode, systemCode)
}
