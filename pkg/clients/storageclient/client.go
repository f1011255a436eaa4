// Package storageclient uploads task images to S3-compatible object storage.
package storageclient

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"

	"github.com/jakechorley/helpboard/pkg/core/model"
)

// Putter is the subset of the S3 API used for uploads
type Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures the client
type Options struct {
	Bucket          string
	Region          string
	Endpoint        string // e.g. http://localhost:4566 for LocalStack
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
}

// Client uploads objects into a single bucket
type Client struct {
	s3            Putter
	bucket        string
	publicBaseURL string
}

// NewClient builds an S3 client from the default AWS credential chain, or from
// static keys when both are provided. A custom endpoint switches to path-style
// addressing.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	s3c := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithPutter(s3c, opts.Bucket, opts.PublicBaseURL), nil
}

// NewWithPutter wraps an existing S3 API implementation
func NewWithPutter(p Putter, bucket, publicBaseURL string) *Client {
	return &Client{
		s3:            p,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// UploadImage stores img under <userID>/<ulid>.<ext> and returns the object
// key and its public URL
func (c *Client) UploadImage(ctx context.Context, userID string, img model.Image) (string, string, error) {
	key := ObjectKey(userID, img.Filename, img.ContentType)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        img.Body,
		ContentType: aws.String(img.ContentType),
		Metadata:    map[string]string{"uploaded-by": userID},
	}
	if img.Size > 0 {
		input.ContentLength = aws.Int64(img.Size)
	}

	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return "", "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return key, c.PublicURL(key), nil
}

// PublicURL resolves an object key to a public URL. Absolute http(s)
// references are returned unchanged.
func (c *Client) PublicURL(key string) string {
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	return c.publicBaseURL + "/" + strings.TrimLeft(key, "/")
}

// ObjectKey builds a unique key for a user's upload
func ObjectKey(userID, filename, contentType string) string {
	return userID + "/" + ulid.Make().String() + extension(filename, contentType)
}

func extension(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
