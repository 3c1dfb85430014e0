package ctxutil

import "context"

type botNameKey struct{}

// WithBotName records which credentialed bot identity drives the calls made
// under ctx. Recall deletion re-establishes the identity of the bot that sent
// the original replies.
func WithBotName(ctx context.Context, botName string) context.Context {
	return context.WithValue(ctx, botNameKey{}, botName)
}

func GetBotName(ctx context.Context) string {
	if v, ok := ctx.Value(botNameKey{}).(string); ok {
		return v
	}
	return ""
}
