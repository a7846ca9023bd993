/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	DefaultTimeout = 180
)

type Option struct {
	ExpireDay int32
}

type Interface interface {
	PutObject(ctx context.Context, key, value string, timeout int64) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, key string, timeout int64) (string, error)
	DeleteObject(ctx context.Context, key string, timeout int64) error
}

// Client wraps an S3 client for mirroring completed result documents to an
// object bucket.
type Client struct {
	*Config
	opt      Option
	s3Client *s3.Client
}

// NewClient creates a new Client instance using system-wide S3 settings.
func NewClient(ctx context.Context, opt Option) (Interface, error) {
	config, err := NewConfig()
	if err != nil {
		return nil, err
	}
	return NewClientFromConfig(ctx, config, opt)
}

// NewClientFromConfig creates a new Client instance from an explicit config.
func NewClientFromConfig(ctx context.Context, config *Config, opt Option) (Interface, error) {
	s3Client := s3.NewFromConfig(config.Config, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	cli := &Client{
		Config:   config,
		opt:      opt,
		s3Client: s3Client,
	}
	if err := cli.checkBucketExisted(ctx); err != nil {
		return nil, err
	}
	if err := cli.setLifecycleRule(ctx); err != nil {
		return nil, err
	}
	return cli, nil
}

// checkBucketExisted checks BucketExisted and returns the result.
func (c *Client) checkBucketExisted(ctx context.Context) error {
	input := &s3.HeadBucketInput{
		Bucket: c.Bucket,
	}
	timeoutCtx, cancel := WithOptionalTimeout(ctx, DefaultTimeout)
	defer cancel()

	if _, err := c.s3Client.HeadBucket(timeoutCtx, input); err != nil {
		return err
	}
	return nil
}

// setLifecycleRule set bucket lifecycle rules.
func (c *Client) setLifecycleRule(ctx context.Context) error {
	if c.opt.ExpireDay <= 0 {
		return nil
	}
	input := &s3.PutBucketLifecycleConfigurationInput{
		Bucket: c.Bucket,
		LifecycleConfiguration: &types.BucketLifecycleConfiguration{
			Rules: []types.LifecycleRule{
				{
					ID:     aws.String(fmt.Sprintf("expire-after-%d-day", c.opt.ExpireDay)),
					Status: types.ExpirationStatusEnabled,
					Expiration: &types.LifecycleExpiration{
						Days: aws.Int32(c.opt.ExpireDay),
					},
				},
			},
		},
	}
	timeoutCtx, cancel := WithOptionalTimeout(ctx, DefaultTimeout)
	defer cancel()
	_, err := c.s3Client.PutBucketLifecycleConfiguration(timeoutCtx, input)
	return err
}

// PutObject upload object to S3 bucket.
func (c *Client) PutObject(ctx context.Context, key, value string, timeout int64) (*s3.PutObjectOutput, error) {
	if c == nil {
		return nil, fmt.Errorf("please init client first")
	}
	if key == "" || value == "" {
		return nil, fmt.Errorf("the object key or value is empty")
	}
	input := &s3.PutObjectInput{
		Bucket: c.Bucket,
		Key:    aws.String(key),
		Body:   bytes.NewReader([]byte(value)),
	}
	timeoutCtx, cancel := WithOptionalTimeout(ctx, timeout)
	defer cancel()

	return c.s3Client.PutObject(timeoutCtx, input)
}

// GetObject download object from S3 bucket.
func (c *Client) GetObject(ctx context.Context, key string, timeout int64) (string, error) {
	if c == nil {
		return "", fmt.Errorf("please init client first")
	}
	if key == "" {
		return "", fmt.Errorf("the object key is empty")
	}
	timeoutCtx, cancel := WithOptionalTimeout(ctx, timeout)
	defer cancel()

	output, err := c.s3Client.GetObject(timeoutCtx, &s3.GetObjectInput{
		Bucket: c.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}
	defer output.Body.Close()
	data, err := io.ReadAll(output.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DeleteObject delete object from S3 bucket.
func (c *Client) DeleteObject(ctx context.Context, key string, timeout int64) error {
	if c == nil {
		return fmt.Errorf("please init client first")
	}
	if key == "" {
		return fmt.Errorf("the object key is empty")
	}
	timeoutCtx, cancel := WithOptionalTimeout(ctx, timeout)
	defer cancel()

	_, err := c.s3Client.DeleteObject(timeoutCtx, &s3.DeleteObjectInput{
		Bucket: c.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	return nil
}
