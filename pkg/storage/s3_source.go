// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/novatechflow/kraftlog/pkg/cache"
)

// S3Config describes an S3 or S3-compatible bucket mirroring the log
// directory layout under Prefix.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	ForcePathStyle  bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key"`
	SecretAccessKey string `yaml:"secret_key"`
	SessionToken    string `yaml:"session_token"`
	// CacheBytes enables an ETag-revalidated segment cache of this size.
	CacheBytes int `yaml:"cache_bytes"`
}

type awsS3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Source reads segments from object storage.
type S3Source struct {
	bucket string
	region string
	prefix string
	api    awsS3API
	cache  *cache.SegmentCache
}

// NewS3Source returns an AWS-backed segment source.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	if cfg.Region == "" {
		return nil, errors.New("s3 region required")
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	src := newS3SourceWithAPI(cfg.Bucket, cfg.Region, cfg.Prefix, client)
	if cfg.CacheBytes > 0 {
		src.cache = cache.NewSegmentCache(cfg.CacheBytes)
	}
	return src, nil
}

func newS3SourceWithAPI(bucket, region, prefix string, api awsS3API) *S3Source {
	return &S3Source{
		bucket: bucket,
		region: region,
		prefix: strings.Trim(prefix, "/"),
		api:    api,
	}
}

func (s *S3Source) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// OpenSegment downloads the object. With a cache configured, a cached copy
// is sent as If-None-Match and reused when the store answers 304.
func (s *S3Source) OpenSegment(ctx context.Context, key string) (io.ReadCloser, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}
	var cached cache.Entry
	haveCached := false
	if s.cache != nil {
		if cached, haveCached = s.cache.Get(key); haveCached && cached.ETag != "" {
			in.IfNoneMatch = aws.String(cached.ETag)
		}
	}
	resp, err := s.api.GetObject(ctx, in)
	if err != nil {
		if haveCached && isS3NotModified(err) {
			segmentCacheLookups.WithLabelValues("revalidated").Inc()
			return io.NopCloser(bytes.NewReader(cached.Data)), nil
		}
		if isS3NotFound(err) {
			if s.cache != nil {
				s.cache.Remove(key)
			}
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrSegmentNotFound, s.bucket, s.objectKey(key))
		}
		return nil, fmt.Errorf("get object %s: %w", s.objectKey(key), err)
	}
	if s.cache == nil || aws.ToString(resp.ETag) == "" {
		return resp.Body, nil
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", s.objectKey(key), err)
	}
	segmentCacheLookups.WithLabelValues("fetched").Inc()
	s.cache.Put(key, aws.ToString(resp.ETag), data)
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *S3Source) WriteSegment(ctx context.Context, key string, body []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", s.objectKey(key), err)
	}
	return nil
}

func (s *S3Source) ListSegments(ctx context.Context, prefix string) ([]SegmentObject, error) {
	listPrefix := s.objectKey(prefix)
	if prefix == "" && s.prefix != "" {
		listPrefix = s.prefix + "/"
	}
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})
	out := make([]SegmentObject, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects %s: %w", listPrefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".log") {
				continue
			}
			key := *obj.Key
			if s.prefix != "" {
				key = strings.TrimPrefix(key, s.prefix+"/")
			}
			out = append(out, SegmentObject{Key: key, Size: aws.ToInt64(obj.Size)})
		}
	}
	sortSegments(out)
	return out, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *S3Source) EnsureBucket(ctx context.Context) error {
	if err := s.Ping(ctx); err == nil {
		return nil
	} else if !errors.Is(err, errBucketMissing) {
		return err
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	_, err := s.api.CreateBucket(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				return nil
			}
		}
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

var errBucketMissing = errors.New("bucket missing")

// Ping checks that the bucket is reachable.
func (s *S3Source) Ping(ctx context.Context) error {
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket" {
			return errBucketMissing
		}
	}
	return fmt.Errorf("head bucket %s: %w", s.bucket, err)
}

func isS3NotModified(err error) bool {
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotModified {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotModified"
}

func isS3NotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
