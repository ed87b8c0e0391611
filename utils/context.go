package utils

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type rqIDKey struct{}

func GetRequestIDFromCtx(ctx context.Context) string {
	rqID, ok := ctx.Value(rqIDKey{}).(string)
	if !ok {
		return ""
	}
	return rqID
}

func NewCtxWithRqID(ctx context.Context) context.Context {
	return context.WithValue(ctx, rqIDKey{}, uuid.NewString())
}

func CreateCtxWithRqID(c *gin.Context) context.Context {
	rqID, ok := c.Get("rqID")
	if !ok {
		return context.WithValue(c.Request.Context(), rqIDKey{}, uuid.NewString())
	}
	return context.WithValue(c.Request.Context(), rqIDKey{}, rqID)
}
