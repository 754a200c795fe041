package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"semanticpipe/internal/persistence"
)

// S3Loader resolves a sourceURI against S3 when it names an object key
// ("s3://bucket/key" or a bare key resolved against the default bucket),
// and against the local filesystem otherwise, grounded on the teacher's
// S3Store client construction.
type S3Loader struct {
	client        *s3.Client
	defaultBucket string
}

// NewS3Loader builds an S3Loader from the default AWS config chain.
func NewS3Loader(ctx context.Context, defaultBucket string) (*S3Loader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest: load aws config: %w", err)
	}
	return &S3Loader{client: s3.NewFromConfig(cfg), defaultBucket: defaultBucket}, nil
}

// Load implements Loader.
func (l *S3Loader) Load(ctx context.Context, sourceURI string) ([]byte, error) {
	bucket, key, isS3 := parseObjectURI(sourceURI, l.defaultBucket)
	if !isS3 {
		return loadLocalFile(sourceURI)
	}

	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("ingest: get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("ingest: read object body: %w", err)
	}
	return data, nil
}

func parseObjectURI(sourceURI, defaultBucket string) (bucket, key string, isS3 bool) {
	if strings.HasPrefix(sourceURI, "s3://") {
		rest := strings.TrimPrefix(sourceURI, "s3://")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) == 2 {
			return parts[0], parts[1], true
		}
		return defaultBucket, parts[0], true
	}
	if defaultBucket != "" && !strings.HasPrefix(sourceURI, "/") && !strings.HasPrefix(sourceURI, ".") {
		return defaultBucket, sourceURI, true
	}
	return "", "", false
}

func loadLocalFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("ingest: read local file: %w", err)
	}
	return data, nil
}
