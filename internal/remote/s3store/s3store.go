// Package s3store maps the remote.Store folder/file model onto an S3 bucket.
// Folder IDs are key prefixes ending in "/", file IDs are object keys, and the
// bucket root is the empty prefix.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/remote"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	delimiter   = "/"
	listMaxKeys = 1000
	rootAlias   = "root"
)

// API is the subset of *s3.Client used by the store
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type Store struct {
	api    API
	bucket string
}

// New builds an S3 client from the default AWS config chain. Static keys,
// when given, take precedence over the environment.
func New(ctx context.Context, opts Options) (*Store, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		if opts.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return NewWithAPI(client, opts.Bucket), nil
}

func NewWithAPI(api API, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

func (s *Store) List(ctx context.Context, folderID, pageToken string) (*remote.ListPage, error) {
	prefix := folderPrefix(folderID)

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
		MaxKeys:   aws.Int32(listMaxKeys),
	}
	if pageToken != "" {
		input.ContinuationToken = aws.String(pageToken)
	}

	out, err := s.api.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, wrapErr("list", err)
	}

	files := make([]*remote.File, 0, len(out.CommonPrefixes)+len(out.Contents))
	for _, cp := range out.CommonPrefixes {
		p := aws.ToString(cp.Prefix)
		files = append(files, &remote.File{
			ID:       p,
			Name:     path.Base(strings.TrimSuffix(p, delimiter)),
			MimeType: remote.FolderMimeType,
		})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		// the folder marker object of the listed folder itself
		if key == prefix || strings.HasSuffix(key, delimiter) {
			continue
		}
		files = append(files, &remote.File{
			ID:           key,
			Name:         path.Base(key),
			ModifiedTime: aws.ToTime(obj.LastModified),
			Size:         aws.ToInt64(obj.Size),
			MD5:          etagMD5(aws.ToString(obj.ETag)),
		})
	}

	next := ""
	if aws.ToBool(out.IsTruncated) {
		next = aws.ToString(out.NextContinuationToken)
	}

	return &remote.ListPage{Files: files, NextPageToken: next}, nil
}

func (s *Store) GetContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return nil, wrapErr("get", err)
	}
	return out.Body, nil
}

func (s *Store) Create(ctx context.Context, name, parentID string, isFolder bool) (string, error) {
	if name == "" || strings.Contains(name, delimiter) {
		return "", fmt.Errorf("%w: %q", remote.ErrInvalidName, name)
	}

	key := folderPrefix(parentID) + name
	if isFolder {
		key += delimiter
	}

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return "", wrapErr("create", err)
	}
	return key, nil
}

func (s *Store) Update(ctx context.Context, fileID string, r io.Reader) (*remote.File, error) {
	body, size, err := seekableBody(r)
	if err != nil {
		return nil, fmt.Errorf("s3 update %s: %w", fileID, err)
	}

	out, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(fileID),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return nil, wrapErr("update", err)
	}

	return &remote.File{
		ID:           fileID,
		Name:         path.Base(fileID),
		ModifiedTime: time.Now().UTC(),
		Size:         size,
		MD5:          etagMD5(aws.ToString(out.ETag)),
	}, nil
}

// Delete removes an object, or every object under a folder prefix
func (s *Store) Delete(ctx context.Context, fileID string) error {
	if !strings.HasSuffix(fileID, delimiter) {
		return s.deleteKey(ctx, fileID)
	}

	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fileID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return wrapErr("delete", err)
		}
		for _, obj := range page.Contents {
			if err := s.deleteKey(ctx, aws.ToString(obj.Key)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) deleteKey(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return wrapErr("delete", err)
	}
	return nil
}

func folderPrefix(folderID string) string {
	if folderID == "" || folderID == rootAlias || folderID == delimiter {
		return ""
	}
	if !strings.HasSuffix(folderID, delimiter) {
		return folderID + delimiter
	}
	return folderID
}

// etagMD5 strips quotes. Multipart ETags are not content MD5s and are dropped.
func etagMD5(etag string) string {
	etag = strings.ReplaceAll(etag, "\"", "")
	if strings.Contains(etag, "-") {
		return ""
	}
	return etag
}

func seekableBody(r io.Reader) (io.ReadSeeker, int64, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		size, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, err
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, 0, err
		}
		return rs, size, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

func wrapErr(op string, err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return remote.NewAPIError(op, http.StatusNotFound, noSuchKey.ErrorMessage())
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return remote.NewAPIError(op, respErr.HTTPStatusCode(), respErr.Error())
	}

	return fmt.Errorf("s3 %s: %w", op, err)
}

var _ remote.Store = (*Store)(nil)
