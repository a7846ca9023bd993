/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package s3

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	commonconfig "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
)

type Config struct {
	aws.Config
	Bucket *string
}

// NewConfig creates a new S3 configuration object from the system-wide S3
// settings.
func NewConfig() (*Config, error) {
	if !commonconfig.IsS3Enable() {
		return nil, fmt.Errorf("s3 is disabled")
	}
	if commonconfig.GetS3Bucket() == "" {
		return nil, fmt.Errorf("the s3 bucket is empty")
	}
	return newConfigFromCredentials(commonconfig.GetS3AccessKey(), commonconfig.GetS3SecretKey(),
		commonconfig.GetS3Endpoint(), commonconfig.GetS3Bucket())
}

func newConfigFromCredentials(ak, sk, endpoint, bucket string) (*Config, error) {
	if ak == "" {
		return nil, fmt.Errorf("the s3 AccessKey is empty")
	}
	if sk == "" {
		return nil, fmt.Errorf("the s3 SecretKey is empty")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("the s3 endpoint is empty")
	}
	if bucket == "" {
		return nil, fmt.Errorf("the s3 bucket is empty")
	}

	credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     ak,
			SecretAccessKey: sk,
			Source:          "StaticCredentials",
		}, nil
	})

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(""),
		config.WithCredentialsProvider(credProvider),
		config.WithHTTPClient(httpClient),
		config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: endpoint,
				}, nil
			}),
		),
	)
	if err != nil {
		return nil, err
	}
	return &Config{
		Config: cfg,
		Bucket: aws.String(bucket),
	}, nil
}

// WithOptionalTimeout derives a deadline context when timeout is positive.
func WithOptionalTimeout(ctx context.Context, timeout int64) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
}
