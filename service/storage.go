package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gstorage "cloud.google.com/go/storage"
	"github.com/airbusgeo/geocube-tilefinder/service/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cavaliercoder/grab"
)

// Storage reads and writes whole files identified by an uri
type Storage interface {
	// Read returns the content of the file
	// Raise ErrNotFound
	Read(ctx context.Context, uri string) ([]byte, error)
	// Write replaces the content of the file
	Write(ctx context.Context, uri string, data []byte) error
}

// Scheme of an uri (gs, s3, http, https or "" for local files)
func Scheme(uri string) string {
	if i := strings.Index(uri, "://"); i > 0 {
		return strings.ToLower(uri[:i])
	}
	return ""
}

// splitBucketKey splits "scheme://bucket/key" into bucket and key
func splitBucketKey(uri string) (string, string, error) {
	u, err := neturl.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("splitBucketKey.Parse: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("splitBucketKey: malformed uri %s", uri)
	}
	return u.Host, key, nil
}

// NewStorage returns the Storage handling the scheme of the uri
func NewStorage(ctx context.Context, uri string) (Storage, error) {
	switch Scheme(uri) {
	case "":
		return LocalStorage{}, nil
	case "gs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("NewStorage.gs: %w", err)
		}
		return &GCSStorage{client: client}, nil
	case "s3":
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("NewStorage.LoadDefaultConfig: %w", err)
		}
		return &S3Storage{client: s3.NewFromConfig(cfg)}, nil
	case "http", "https":
		return &HTTPStorage{client: grab.NewClient()}, nil
	}
	return nil, MakeFatal(fmt.Errorf("NewStorage: unsupported scheme: %s", uri))
}

// ReadURI is a shortcut to read a file whatever its location
func ReadURI(ctx context.Context, uri string) ([]byte, error) {
	s, err := NewStorage(ctx, uri)
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, uri)
}

// WriteURI is a shortcut to write a file whatever its location
func WriteURI(ctx context.Context, uri string, data []byte) error {
	s, err := NewStorage(ctx, uri)
	if err != nil {
		return err
	}
	return s.Write(ctx, uri, data)
}

// LocalStorage implements Storage on the local filesystem
type LocalStorage struct{}

// Read implements Storage
func (LocalStorage) Read(ctx context.Context, uri string) ([]byte, error) {
	b, err := os.ReadFile(uri)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound{Resource: uri}
		}
		return nil, fmt.Errorf("LocalStorage.Read: %w", err)
	}
	return b, nil
}

// Write implements Storage
func (LocalStorage) Write(ctx context.Context, uri string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(uri), 0755); err != nil {
		return fmt.Errorf("LocalStorage.MkdirAll: %w", err)
	}
	// Write in a temporary file then rename, so that readers never see a partial file
	tmp := uri + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("LocalStorage.WriteFile: %w", err)
	}
	if err := os.Rename(tmp, uri); err != nil {
		return fmt.Errorf("LocalStorage.Rename: %w", err)
	}
	return nil
}

// GCSStorage implements Storage on Google Cloud Storage
type GCSStorage struct {
	client *gstorage.Client
}

// Read implements Storage
func (gs *GCSStorage) Read(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := splitBucketKey(uri)
	if err != nil {
		return nil, MakeFatal(err)
	}
	r, err := gs.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound{Resource: uri}
		}
		return nil, fmt.Errorf("GCSStorage.NewReader: %w", err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, MakeTemporary(fmt.Errorf("GCSStorage.ReadAll: %w", err))
	}
	return b, nil
}

// Write implements Storage
func (gs *GCSStorage) Write(ctx context.Context, uri string, data []byte) error {
	bucket, key, err := splitBucketKey(uri)
	if err != nil {
		return MakeFatal(err)
	}
	w := gs.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("GCSStorage.Write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCSStorage.Close: %w", err)
	}
	return nil
}

// S3Storage implements Storage on AWS S3 (or any compatible service)
type S3Storage struct {
	client *s3.Client
}

// Read implements Storage
func (ss *S3Storage) Read(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := splitBucketKey(uri)
	if err != nil {
		return nil, MakeFatal(err)
	}
	out, err := ss.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound{Resource: uri}
		}
		return nil, fmt.Errorf("S3Storage.GetObject: %w", err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, MakeTemporary(fmt.Errorf("S3Storage.ReadAll: %w", err))
	}
	return b, nil
}

// Write implements Storage
func (ss *S3Storage) Write(ctx context.Context, uri string, data []byte) error {
	bucket, key, err := splitBucketKey(uri)
	if err != nil {
		return MakeFatal(err)
	}
	if _, err := ss.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return fmt.Errorf("S3Storage.PutObject: %w", err)
	}
	return nil
}

// HTTPStorage implements a read-only Storage on http(s) urls.
// Files are downloaded to a temporary file before being read.
type HTTPStorage struct {
	client *grab.Client
}

// Read implements Storage
func (hs *HTTPStorage) Read(ctx context.Context, uri string) ([]byte, error) {
	tmpdir, err := os.MkdirTemp("", "tilefinder")
	if err != nil {
		return nil, fmt.Errorf("HTTPStorage.MkdirTemp: %w", err)
	}
	defer os.RemoveAll(tmpdir)

	req, err := grab.NewRequest(tmpdir, uri)
	if err != nil {
		return nil, MakeFatal(fmt.Errorf("HTTPStorage.NewRequest: %w", err))
	}
	req = req.WithContext(ctx)

	start := time.Now()
	resp := hs.client.Do(req)
	if err := resp.Err(); err != nil {
		err = fmt.Errorf("HTTPStorage.Read[%s]: %w", uri, err)
		if resp.HTTPResponse == nil {
			return nil, MakeTemporary(err)
		}
		switch resp.HTTPResponse.StatusCode {
		case http.StatusNotFound:
			return nil, ErrNotFound{Resource: uri}
		case 408, 429, 500, 502, 503, 504:
			return nil, MakeTemporary(err)
		}
		return nil, err
	}
	log.Logger(ctx).Sugar().Debugf("%s downloaded in %v", uri, time.Since(start))

	b, err := os.ReadFile(resp.Filename)
	if err != nil {
		return nil, fmt.Errorf("HTTPStorage.ReadFile: %w", err)
	}
	return b, nil
}

// Write implements Storage
func (hs *HTTPStorage) Write(ctx context.Context, uri string, data []byte) error {
	return MakeFatal(fmt.Errorf("HTTPStorage.Write: read-only storage: %s", uri))
}
