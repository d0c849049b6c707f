package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/dmitrijs2005/vulnblog/internal/common"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type s3Lazy struct {
	once   sync.Once
	client *s3.Client
	err    error
}

// projectRef is the first label of the project host. The storage S3
// endpoint expects it as the access key id.
func (c *Client) projectRef() string {
	ref, _, _ := strings.Cut(c.base.Hostname(), ".")
	return ref
}

// credentialsProvider signs with the project access keys when configured.
// Otherwise it uses the anon key as secret and the caller's JWT as session
// token. The credentials expire immediately so every request
// picks up the current token.
func (c *Client) credentialsProvider() aws.CredentialsProvider {
	if c.s3Keys[0] != "" && c.s3Keys[1] != "" {
		return awscreds.NewStaticCredentialsProvider(c.s3Keys[0], c.s3Keys[1], "")
	}
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		tok, err := c.bearer(ctx)
		if err != nil {
			return aws.Credentials{}, err
		}
		return aws.Credentials{
			AccessKeyID:     c.projectRef(),
			SecretAccessKey: c.apiKey,
			SessionToken:    tok,
			Source:          "supabase",
			CanExpire:       true,
			Expires:         time.Now(),
		}, nil
	})
}

func (c *Client) storage(ctx context.Context) (*s3.Client, error) {
	lazy := c.s3
	lazy.once.Do(func() {
		cfg, err := loadDefaultAWSConfig(ctx,
			config.WithRegion(c.region),
			config.WithCredentialsProvider(c.credentialsProvider()),
			config.WithHTTPClient(c.http),
		)
		if err != nil {
			lazy.err = fmt.Errorf("load storage config: %w", err)
			return
		}
		lazy.client = newS3ClientFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(c.endpoint("/storage/v1/s3", nil))
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		})
	})
	return lazy.client, lazy.err
}

// Upload stores data at bucket/path and returns path.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	client, err := c.storage(ctx)
	if err != nil {
		return "", err
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := client.PutObject(ctx, in); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", mapStorageError(err)
	}
	return path, nil
}

// PublicURL is where a public bucket serves path without authentication.
func (c *Client) PublicURL(bucket, path string) string {
	return c.endpoint("/storage/v1/object/public/"+bucket+"/"+path, nil)
}

func mapStorageError(err error) error {
	re := &common.RemoteError{Err: err}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		re.Status = respErr.HTTPStatusCode()
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		re.Code = apiErr.ErrorCode()
		re.Message = apiErr.ErrorMessage()
	}
	return re
}
