package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"buzzchat/internal/pkg/logx"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/rs/zerolog"
)

// snsAPI is the part of the SNS client the gateway uses.
type snsAPI interface {
	CreatePlatformEndpoint(ctx context.Context, in *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSGateway delivers pushes through an SNS platform application.
type SNSGateway struct {
	client         snsAPI
	applicationARN string
	log            zerolog.Logger
}

// NewSNSGateway builds an SNS client from the default AWS credential chain.
// The region is taken from applicationARN.
func NewSNSGateway(ctx context.Context, applicationARN string) (*SNSGateway, error) {
	region, err := regionFromARN(applicationARN)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("push: load aws config: %w", err)
	}
	return newSNSGateway(sns.NewFromConfig(cfg), applicationARN), nil
}

func newSNSGateway(client snsAPI, applicationARN string) *SNSGateway {
	return &SNSGateway{
		client:         client,
		applicationARN: applicationARN,
		log:            logx.Component("push").With().Str("gateway", "sns").Logger(),
	}
}

// regionFromARN reads the region of arn:aws:sns:<region>:<account>:app/...
func regionFromARN(arn string) (string, error) {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 6 || parts[0] != "arn" || parts[2] != "sns" || parts[3] == "" {
		return "", fmt.Errorf("push: invalid SNS platform application ARN %q", arn)
	}
	return parts[3], nil
}

func (g *SNSGateway) Register(ctx context.Context, deviceToken string) (string, error) {
	deviceToken = strings.TrimSpace(deviceToken)
	if deviceToken == "" {
		return "", errors.New("push: empty device token")
	}

	out, err := g.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(g.applicationARN),
		Token:                  aws.String(deviceToken),
	})
	if err != nil {
		return "", fmt.Errorf("push: create endpoint: %w", err)
	}
	return aws.ToString(out.EndpointArn), nil
}

func (g *SNSGateway) Publish(ctx context.Context, endpoint string, n Notification) error {
	msg, err := snsMessage(n)
	if err != nil {
		return err
	}

	_, err = g.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(endpoint),
		Message:          aws.String(msg),
		MessageStructure: aws.String("json"),
	})
	var disabled *types.EndpointDisabledException
	if errors.As(err, &disabled) {
		return ErrEndpointDisabled
	}
	if err != nil {
		return fmt.Errorf("push: publish: %w", err)
	}
	g.log.Debug().Str("endpoint", endpoint).Msg("Push published")
	return nil
}

// snsMessage renders n as an SNS JSON message with a GCM body for web and
// Android endpoints and a plain default.
func snsMessage(n Notification) (string, error) {
	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{"title": n.Title, "body": n.Body},
		"data":         n.Data,
	})
	if err != nil {
		return "", fmt.Errorf("push: encode notification: %w", err)
	}
	b, err := json.Marshal(map[string]string{
		"default": n.Title + ": " + n.Body,
		"GCM":     string(gcm),
	})
	if err != nil {
		return "", fmt.Errorf("push: encode notification: %w", err)
	}
	return string(b), nil
}
