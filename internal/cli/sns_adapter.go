package cli

import (
	"context"
	"fmt"
	"strconv"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

const snsSpendLimitAttribute = "MonthlySpendLimit"

// snsAPI is the subset of *sns.Client the adapter calls.
type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
	GetSMSAttributes(ctx context.Context, in *sns.GetSMSAttributesInput, opts ...func(*sns.Options)) (*sns.GetSMSAttributesOutput, error)
}

// snsClientAdapter wraps the AWS SNS client to implement sms.SNSClient.
type snsClientAdapter struct {
	client snsAPI
}

func newSNSClient(ctx context.Context, region string) (*snsClientAdapter, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &snsClientAdapter{client: sns.NewFromConfig(cfg)}, nil
}

func (a *snsClientAdapter) Publish(ctx context.Context, phoneNumber, message string) (string, error) {
	out, err := a.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: &phoneNumber,
		Message:     &message,
	})
	if err != nil {
		return "", err
	}
	if out.MessageId == nil {
		return "", nil
	}
	return *out.MessageId, nil
}

func (a *snsClientAdapter) MonthlySpendLimit(ctx context.Context) (float64, error) {
	out, err := a.client.GetSMSAttributes(ctx, &sns.GetSMSAttributesInput{
		Attributes: []string{snsSpendLimitAttribute},
	})
	if err != nil {
		return 0, err
	}
	raw, ok := out.Attributes[snsSpendLimitAttribute]
	if !ok {
		return 0, fmt.Errorf("%s attribute not returned", snsSpendLimitAttribute)
	}
	limit, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", snsSpendLimitAttribute, raw, err)
	}
	return limit, nil
}
