package pub

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const SNSEndpointKey = "SNS_ENDPOINT"

// SNS publishes audit payloads to an SNS topic.
type SNS struct{ cli *sns.Client }

func NewSNS(c *sns.Client) *SNS { return &SNS{cli: c} }

// PublishRaw sends payload as a JSON message. The "source" attribute lets subscribers filter
// whitelist audit traffic out of a shared topic.
func (s *SNS) PublishRaw(ctx context.Context, topicArn string, payload []byte) error {
	_, err := s.cli.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicArn),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]snsTypes.MessageAttributeValue{
			"content-type": {DataType: aws.String("String"), StringValue: aws.String("application/json")},
			"source":       {DataType: aws.String("String"), StringValue: aws.String("whitelistbot")},
		},
	})
	return err
}

// SNSClientFromEnv builds an SNS client from the default AWS config. When SNS_ENDPOINT is set
// (local mocks), static test credentials are used.
func SNSClientFromEnv(ctx context.Context) (*sns.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := os.Getenv(SNSEndpointKey)
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			if o.Region == "" {
				o.Region = "us-east-1"
			}
			o.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
		}
	}), nil
}
