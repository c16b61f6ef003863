// Package s3 stores archive blobs in a single S3 compatible bucket (AWS S3 or
// MinIO).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"crmcore/internal/blob/core"
)

// DefaultRegion applies when Config.Region is empty.
const DefaultRegion = "us-east-1"

// Config describes the bucket and how to reach it. Empty credentials fall
// back to the default AWS credential chain.
type Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	// HTTPClient replaces the transport of the S3 client only; tests use it
	// to stay offline.
	HTTPClient *http.Client `yaml:"-"`
}

// Store implements core.Store on an S3 bucket.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// New builds a client for cfg. No request is sent until the first call.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 blob store: bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 blob store: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// Set on the client rather than the loaded config: a shared config
		// with AWS_CA_BUNDLE requires a buildable transport.
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return &Store{client: client, presign: s3.NewPresignClient(client), bucket: cfg.Bucket}, nil
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Driver reports core.DriverS3.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

// Put uploads r under key. S3 has no create-only write, so existence is
// checked with a HEAD first; concurrent writers of one key can still race.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	key, err := core.CleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := s.Head(ctx, key); err == nil {
		return core.Info{}, fmt.Errorf("%w: %s", core.ErrExists, key)
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.Info{}, err
	}
	input := &s3.PutObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key), Body: r}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = core.CloneMetadata(opts.Metadata)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return core.Info{}, fmt.Errorf("s3 put %s: %w", key, err)
	}
	return s.Head(ctx, key)
}

// Get downloads key. The caller closes the body.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	key, err := core.CleanKey(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return core.Info{}, nil, translate(key, err)
	}
	info := core.Info{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		Metadata:     core.CloneMetadata(out.Metadata),
		LastModified: aws.ToTime(out.LastModified),
	}
	return info, out.Body, nil
}

// Head fetches object attributes.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	key, err := core.CleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return core.Info{}, translate(key, err)
	}
	return core.Info{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		Metadata:     core.CloneMetadata(out.Metadata),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Delete removes key and reports whether it existed before the call.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.Head(ctx, key); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return false, fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return true, nil
}

// List pages through ListObjectsV2. Listing does not return content type or
// user metadata; use Head for those.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, core.Info{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL signs a time limited GET link for key.
func (s *Store) PresignURL(ctx context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if !opts.ReadOnly() {
		return "", core.ErrUnsupported
	}
	key, err := core.CleanKey(key)
	if err != nil {
		return "", err
	}
	expiry := opts.Expiration()
	req, err := s.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)},
		func(po *s3.PresignOptions) { po.Expires = expiry },
	)
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return req.URL, nil
}

func translate(key string, err error) error {
	var resp *awshttp.ResponseError
	if errors.As(err, &resp) && resp.HTTPStatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return fmt.Errorf("s3 %s: %w", key, err)
}
