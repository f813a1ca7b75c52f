package transport

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/gosight/perfship/internal/config"
)

// PutLogEventsAPI is the slice of the CloudWatch Logs client used here.
type PutLogEventsAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatch appends to an AWS CloudWatch Logs stream.
type CloudWatch struct {
	api PutLogEventsAPI
}

func NewCloudWatch(ctx context.Context, cfg config.CloudWatchConfig) (*CloudWatch, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := cloudwatchlogs.NewFromConfig(awsCfg, func(o *cloudwatchlogs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewCloudWatchWithAPI(client), nil
}

func NewCloudWatchWithAPI(api PutLogEventsAPI) *CloudWatch {
	return &CloudWatch{api: api}
}

func (c *CloudWatch) PutLogEvents(ctx context.Context, req *Request) (*Response, error) {
	events := make([]types.InputLogEvent, len(req.Events))
	for i, e := range req.Events {
		events[i] = types.InputLogEvent{
			Message:   aws.String(e.Message),
			Timestamp: aws.Int64(e.Timestamp),
		}
	}

	input := &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(req.Group),
		LogStreamName: aws.String(req.Stream),
		LogEvents:     events,
	}
	if req.SequenceToken != "" {
		input.SequenceToken = aws.String(req.SequenceToken)
	}

	out, err := c.api.PutLogEvents(ctx, input)
	if err != nil {
		return classifyCloudWatchError(err)
	}

	if info := out.RejectedLogEventsInfo; info != nil {
		log.Warn().
			Str("group", req.Group).
			Str("stream", req.Stream).
			Int32("too_old_end", aws.ToInt32(info.TooOldLogEventEndIndex)).
			Int32("too_new_start", aws.ToInt32(info.TooNewLogEventStartIndex)).
			Int32("expired_end", aws.ToInt32(info.ExpiredLogEventEndIndex)).
			Msg("CloudWatch rejected part of the batch")
	}

	return &Response{Outcome: Accepted, NextToken: aws.ToString(out.NextSequenceToken)}, nil
}

func classifyCloudWatchError(err error) (*Response, error) {
	var stale *types.InvalidSequenceTokenException
	if errors.As(err, &stale) {
		return &Response{
			Outcome:       StaleToken,
			ExpectedToken: aws.ToString(stale.ExpectedSequenceToken),
			Code:          stale.ErrorCode(),
			Diagnostic:    stale.ErrorMessage(),
		}, nil
	}

	var accepted *types.DataAlreadyAcceptedException
	if errors.As(err, &accepted) {
		return &Response{
			Outcome:       Rejected,
			ExpectedToken: aws.ToString(accepted.ExpectedSequenceToken),
			Code:          accepted.ErrorCode(),
			Diagnostic:    accepted.ErrorMessage(),
		}, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &Response{
			Outcome:    Rejected,
			Code:       apiErr.ErrorCode(),
			Diagnostic: apiErr.ErrorMessage(),
		}, nil
	}

	return nil, err
}
