package ports

import "context"

// Publisher delivers an already encoded message to a topic identified by arn.
type Publisher interface {
	PublishRaw(ctx context.Context, topicArn string, payload []byte) error
}
