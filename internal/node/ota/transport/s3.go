package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/sensornode/pkg/options"
)

// NewMinIOClient creates an S3 client from the node's S3 options.
func NewMinIOClient(opts *options.S3Options) (*minio.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

var _ Source = (*S3Source)(nil)

// S3Source fetches artifacts from an S3-compatible bucket that mirrors the
// repository layout under prefix.
type S3Source struct {
	client *minio.Client
	bucket string
	dir    string
}

// NewS3Source returns a source for objects under <prefix>/<nodeDir>/.
func NewS3Source(client *minio.Client, bucket, prefix, nodeDir string) *S3Source {
	return &S3Source{client: client, bucket: bucket, dir: path.Join(prefix, nodeDir)}
}

// Key returns the object key of name.
func (s *S3Source) Key(name string) string {
	return path.Join(s.dir, name)
}

func (s *S3Source) Location(name string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.Key(name))
}

func (s *S3Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.Key(name)

	// GetObject is lazy; Stat surfaces a missing key before any bytes are read.
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		resp := minio.ToErrorResponse(err)
		switch {
		case resp.Code == "NoSuchKey" || resp.StatusCode == 404:
			return nil, fmt.Errorf("%s: %w", s.Location(name), ErrNotFound)
		case resp.StatusCode != 0:
			return nil, &StatusError{URL: s.Location(name), Code: resp.StatusCode}
		default:
			return nil, fmt.Errorf("stat object %s: %w", key, err)
		}
	}
	return obj, nil
}
