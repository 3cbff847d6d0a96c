// Package aws defines functions used to interact with S3 compatible object
// storage (AWS S3, Cloudflare R2, MinIO)
package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

type Options struct {
	Bucket          string
	Region          string
	Endpoint        string // Empty for AWS itself
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool   // MinIO and most self hosted stores need this
	PublicURL       string // Base used for the stored object URL, e.g. a CDN
}

// R2Options fills in the endpoint and region used by Cloudflare R2
func R2Options(accountID string, o Options) Options {
	o.Endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	o.Region = "auto"
	return o
}

// NewS3 builds the client and makes sure the bucket exists, creating it
// when it doesn't
func NewS3(ctx context.Context, o Options) (*S3Store, error) {
	if o.Bucket == "" {
		return nil, errors.New("bucket can't be empty")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(o.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			o.AccessKeyID,
			o.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config, %w", err)
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
		}
		so.UsePathStyle = o.PathStyle
	})

	s := &S3Store{
		C:         client,
		Bucket:    aws.String(o.Bucket),
		region:    o.Region,
		endpoint:  strings.TrimSuffix(o.Endpoint, "/"),
		pathStyle: o.PathStyle,
		publicURL: strings.TrimSuffix(o.PublicURL, "/"),
	}

	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	_, err := s.C.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: s.Bucket,
	})
	if err == nil {
		zap.L().Info("Storage bucket is ready", zap.String("bucket", *s.Bucket))
		return nil
	}

	if !isNotFound(err) {
		return fmt.Errorf("failed to check if bucket exists, %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: s.Bucket}
	// us-east-1 and R2 reject an explicit location constraint
	if s.region != "" && s.region != "us-east-1" && s.region != "auto" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	_, err = s.C.CreateBucket(ctx, input)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			return fmt.Errorf("failed to create bucket '%s', %w", *s.Bucket, err)
		}
	}

	zap.L().Info("Storage bucket created", zap.String("bucket", *s.Bucket))
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
