package rekognition

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/smithy-go"
)

const (
	errCodeAccessDenied     = "AccessDeniedException"
	errCodeInvalidParameter = "InvalidParameterException"
	errCodeInvalidFormat    = "InvalidImageFormatException"
	errCodeImageTooLarge    = "ImageTooLargeException"
	errCodeThroughput       = "ProvisionedThroughputExceededException"
	errCodeThrottling       = "ThrottlingException"
)

// DetectAPI is the subset of the Rekognition API used by the detector.
type DetectAPI interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// NewAPI builds a Rekognition client using the AWS default credential chain.
func NewAPI(ctx context.Context, cfg Config) (*rekognition.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return rekognition.NewFromConfig(awsCfg), nil
}

// mapAPIError translates AWS error codes into package errors.
func mapAPIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case errCodeAccessDenied:
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.ErrorMessage())
		case errCodeInvalidParameter, errCodeInvalidFormat, errCodeImageTooLarge:
			return fmt.Errorf("%w: %s", ErrInvalidImage, apiErr.ErrorMessage())
		case errCodeThroughput, errCodeThrottling:
			return fmt.Errorf("%w: %s", ErrThrottled, apiErr.ErrorMessage())
		}
	}

	return err
}
