package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Download is the result of fetching an audio blob: the bytes, the temp
// file they were staged through, and the size. The caller owns TempPath
// and must remove it when done.
type Download struct {
	Buffer   []byte
	TempPath string
	Size     int64
}

// S3API is the slice of the S3 client the downloader uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Downloader fetches recording blobs from object storage into temp files.
type Downloader struct {
	client  S3API
	tempDir string
	log     *logrus.Entry
}

func NewDownloader(client S3API, tempDir string, log *logrus.Entry) *Downloader {
	return &Downloader{client: client, tempDir: tempDir, log: log}
}

// DownloadObject fetches bucket/key, staging it through a temp file so very
// large recordings do not need to be held twice.
func (d *Downloader) DownloadObject(ctx context.Context, bucket, key string) (*Download, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	ext := filepath.Ext(key)
	tempPath := filepath.Join(d.tempDir, fmt.Sprintf("download_%s%s", uuid.New().String(), ext))
	f, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	size, err := io.Copy(f, out.Body)
	f.Close()
	if err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("write download to temp file: %w", err)
	}

	buf, err := os.ReadFile(tempPath)
	if err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("read downloaded file: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"bucket": bucket,
		"key":    key,
		"bytes":  size,
	}).Info("recording downloaded")

	return &Download{Buffer: buf, TempPath: tempPath, Size: size}, nil
}

// ResolveStoragePath maps a recording file URL to (bucket, key). Accepts
// s3://bucket/key URLs, https object-store URLs with the bucket as the
// first path element, and bare "bucket/key" paths.
func ResolveStoragePath(fileURL string) (bucket, key string, err error) {
	if strings.HasPrefix(fileURL, "s3://") {
		rest := strings.TrimPrefix(fileURL, "s3://")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("malformed s3 url: %s", fileURL)
		}
		return parts[0], parts[1], nil
	}

	if strings.HasPrefix(fileURL, "http://") || strings.HasPrefix(fileURL, "https://") {
		u, err := url.Parse(fileURL)
		if err != nil {
			return "", "", fmt.Errorf("parse file url: %w", err)
		}
		// virtual-hosted style: bucket.s3.region.amazonaws.com/key
		if host, _, found := strings.Cut(u.Host, ".s3"); found && host != "" {
			k := strings.TrimPrefix(u.Path, "/")
			if k == "" {
				return "", "", fmt.Errorf("missing object key in url: %s", fileURL)
			}
			return host, k, nil
		}
		// path style: host/bucket/key
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("cannot resolve bucket from url: %s", fileURL)
		}
		return parts[0], parts[1], nil
	}

	parts := strings.SplitN(fileURL, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot resolve storage path from %q", fileURL)
	}
	return parts[0], parts[1], nil
}
