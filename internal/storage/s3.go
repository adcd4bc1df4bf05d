package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/well-timeline/backend/internal/models"
)

// S3Config configures an S3 or S3-compatible (MinIO) document store.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// S3Store implements Store on a single bucket. Document bodies live under
// <prefix>documents/<id> and their metadata under <prefix>meta/<id>.json.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates an S3Store. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return newS3Store(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) bodyKey(id string) string { return s.prefix + "documents/" + id }
func (s *S3Store) metaKey(id string) string { return s.prefix + "meta/" + id + metaSuffix }
func (s *S3Store) metaPrefix() string       { return s.prefix + "meta/" }

// idFromMetaKey extracts the id from a metadata key.
func idFromMetaKey(key string) (string, bool) {
	base := path.Base(key)
	if !strings.HasSuffix(base, metaSuffix) {
		return "", false
	}
	return strings.TrimSuffix(base, metaSuffix), true
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

func (s *S3Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}

// Save uploads a document and its metadata.
func (s *S3Store) Save(ctx context.Context, name, contentType string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	id := uuid.New().String()

	input := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    aws.String(s.bodyKey(id)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("put document: %w", err)
	}

	info := &models.FileInfo{
		ID:          id,
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		UploadedAt:  time.Now(),
		Status:      StatusUploaded,
	}
	if err := s.putJSON(ctx, s.metaKey(id), info); err != nil {
		return nil, fmt.Errorf("put metadata: %w", err)
	}
	return info, nil
}

// Get reads document metadata.
func (s *S3Store) Get(ctx context.Context, id string) (*models.FileInfo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: aws.String(s.metaKey(id))})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	defer out.Body.Close()

	var info models.FileInfo
	if err := json.NewDecoder(out.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &info, nil
}

// Open streams the document body.
func (s *S3Store) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: aws.String(s.bodyKey(id))})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return out.Body, nil
}

// List returns the most recent documents.
func (s *S3Store) List(ctx context.Context, limit int) ([]*models.FileInfo, error) {
	prefix := s.metaPrefix()
	var ids []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list metadata: %w", err)
		}
		for _, obj := range out.Contents {
			if id, ok := idFromMetaKey(aws.ToString(obj.Key)); ok {
				ids = append(ids, id)
			}
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}

	list := make([]*models.FileInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes a document and its metadata.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	for _, key := range []string{s.bodyKey(id), s.metaKey(id)} {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: aws.String(key)}); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// Rename rewrites the metadata with a new display name.
func (s *S3Store) Rename(ctx context.Context, id, newName string) (*models.FileInfo, error) {
	info, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	info.Name = newName
	if err := s.putJSON(ctx, s.metaKey(id), info); err != nil {
		return nil, fmt.Errorf("put metadata: %w", err)
	}
	return info, nil
}

// SetStatus rewrites the metadata with a new status.
func (s *S3Store) SetStatus(ctx context.Context, id, status string) error {
	info, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	info.Status = status
	if err := s.putJSON(ctx, s.metaKey(id), info); err != nil {
		return fmt.Errorf("put metadata: %w", err)
	}
	return nil
}
