package messaging

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
)

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return awsCfg, nil
}

// NewAWSPublisher sends security events to an existing SQS queue named queueName.
func NewAWSPublisher(ctx context.Context, queueName string) (IPublisher, error) {
	awsCfg, err := loadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}

	publisher, err := sqs.NewPublisher(sqs.PublisherConfig{
		AWSConfig:                   awsCfg,
		DoNotCreateQueueIfNotExists: true,
		Marshaler:                   sqs.DefaultMarshalerUnmarshaler{},
	}, newLogger("aws"))
	if err != nil {
		return nil, fmt.Errorf("unable to create SQS publisher for %s: %w", queueName, err)
	}

	return &topicPublisher{topic: queueName, publisher: publisher}, nil
}

func NewAWSSubscriber(ctx context.Context, queueName string) (ISubscriber, error) {
	awsCfg, err := loadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}

	subscriber, err := sqs.NewSubscriber(sqs.SubscriberConfig{
		AWSConfig:                   awsCfg,
		DoNotCreateQueueIfNotExists: true,
		Unmarshaler:                 sqs.DefaultMarshalerUnmarshaler{},
	}, newLogger("aws"))
	if err != nil {
		return nil, fmt.Errorf("unable to create SQS subscriber for %s: %w", queueName, err)
	}

	return &topicSubscriber{topic: queueName, subscriber: subscriber}, nil
}
