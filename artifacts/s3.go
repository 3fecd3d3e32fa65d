package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3 store. Endpoint and ForcePathStyle target
// S3-compatible services.
type S3Config struct {
	Region               string `yaml:"region" json:"region"`
	Bucket               string `yaml:"bucket" json:"bucket"`
	KeyPrefix            string `yaml:"key_prefix" json:"key_prefix"`
	ServerSideEncryption string `yaml:"server_side_encryption" json:"server_side_encryption"`
	KMSKeyID             string `yaml:"kms_key_id" json:"kms_key_id"`
	StorageClass         string `yaml:"storage_class" json:"storage_class"`
	Profile              string `yaml:"profile" json:"profile"`
	AccessKey            string `yaml:"access_key" json:"-"`
	SecretKey            string `yaml:"secret_key" json:"-"`
	SessionToken         string `yaml:"session_token" json:"-"`
	Endpoint             string `yaml:"endpoint" json:"endpoint"`
	ForcePathStyle       bool   `yaml:"force_path_style" json:"force_path_style"`
	MaxRetries           int    `yaml:"max_retries" json:"max_retries"`
}

// S3Store keeps artifacts as objects in one bucket.
type S3Store struct {
	client *s3.Client
	config S3Config
}

// NewS3Store loads the AWS configuration and builds the client. It makes no
// network call.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("invalid S3 configuration: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		loadOptions = append(loadOptions, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	// Static credentials override the default chain.
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		static := aws.Credentials{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			SessionToken:    cfg.SessionToken,
			Source:          "waterfall-bridge",
		}
		awsCfg.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return static, nil
		})
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.MaxRetries > 0 {
			o.RetryMaxAttempts = cfg.MaxRetries
		}
	})

	return &S3Store{client: client, config: cfg}, nil
}

func (s *S3Store) objectKey(key string) string {
	prefix := s.config.KeyPrefix
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error) {
	if err := ValidateKey(key); err != nil {
		return nil, &StoreError{Backend: TypeS3, Operation: "put", Key: key, Err: err}
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.config.Bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      map[string]string{"producer": "waterfall-bridge"},
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	switch {
	case s.config.KMSKeyID != "":
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.config.KMSKeyID)
	case s.config.ServerSideEncryption != "":
		input.ServerSideEncryption = s3types.ServerSideEncryption(s.config.ServerSideEncryption)
	}
	if s.config.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(s.config.StorageClass)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, &StoreError{Backend: TypeS3, Operation: "put", Key: key, Err: err}
	}
	return &Artifact{Key: key, ContentType: contentType, Size: int64(len(data))}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (*Artifact, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			err = ErrNotFound
		}
		return nil, &StoreError{Backend: TypeS3, Operation: "get", Key: key, Err: err}
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, &StoreError{Backend: TypeS3, Operation: "get", Key: key, Err: err}
	}

	artifact := &Artifact{
		Key:         key,
		ContentType: aws.ToString(result.ContentType),
		Size:        int64(len(data)),
		Data:        data,
	}
	if result.LastModified != nil {
		artifact.UpdatedAt = result.LastModified.UTC()
	}
	return artifact, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	base := s.objectKey("")
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(base + prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &StoreError{Backend: TypeS3, Operation: "list", Err: err}
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), base)
			if key != "" {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return &StoreError{Backend: TypeS3, Operation: "delete", Key: key, Err: err}
	}
	return nil
}
