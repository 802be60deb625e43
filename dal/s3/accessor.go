// Package s3 provides the S3-compatible scheme for dal.
//
// The adapter supports AWS S3, MinIO, LocalStack, Cloudflare R2, and other
// S3-compatible object stores. Importing the package registers the "s3"
// scheme:
//
//	import _ "github.com/justapithecus/cdal/dal/s3"
//
// # Execution
//
// The accessor is not blocking: every call is network I/O, and dal.Build
// attaches the blocking layer that drives it on a Runtime.
//
// # Uploads
//
// Writers spool their bytes to a temp file and upload it on Close with a
// known ContentLength, so plain-HTTP endpoints that reject unsized bodies
// work too. Objects up to 5GB use PutObject; larger ones use a multipart
// upload read directly from the spool file.
//
// # Consistency
//
// AWS S3 provides strong read-after-write consistency. Other S3-compatible
// backends may differ.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/justapithecus/cdal/dal"
)

// S3 upload constraints.
const (
	// minPartSize is the minimum part size for multipart uploads (except the last part).
	minPartSize = 5 * 1024 * 1024 // 5MB

	// maxParts is the maximum number of parts in a multipart upload.
	maxParts = 10000

	// maxPutSize is the PutObject limit; larger objects use multipart.
	maxPutSize = 5 * 1024 * 1024 * 1024 // 5GB

	// maxObjectSize is the S3 object size limit.
	maxObjectSize = 5 * 1024 * 1024 * 1024 * 1024 // 5TB
)

// API defines the subset of the S3 client interface used by the accessor.
// This enables testing with mock implementations.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Config holds configuration for the S3 accessor.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Root is an optional key prefix for all operations.
	// A trailing slash is added if missing; a leading one is dropped.
	Root string
}

// Accessor implements dal.Accessor using an S3-compatible backend.
type Accessor struct {
	client     API
	bucket     string
	prefix     string
	createTemp func() (*os.File, error) // spool file factory for writers
	maxPutSize int64
	partSize   int64
}

// New creates an S3 accessor with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint
// (see NewClient).
func New(client API, cfg Config) (*Accessor, error) {
	if client == nil {
		return nil, &dal.InitError{Scheme: dal.SchemeS3, Err: errors.New("client is required")}
	}
	if cfg.Bucket == "" {
		return nil, &dal.ConfigError{Scheme: dal.SchemeS3, Key: "bucket", Err: errors.New("required")}
	}

	prefix := strings.TrimLeft(cfg.Root, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Accessor{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     prefix,
		createTemp: func() (*os.File, error) { return os.CreateTemp("", "cdal-s3-*") },
		maxPutSize: maxPutSize,
		partSize:   minPartSize,
	}, nil
}

// Info implements dal.Accessor.
func (a *Accessor) Info() dal.Info {
	return dal.Info{
		Scheme: dal.SchemeS3,
		Root:   "/" + a.prefix,
		Name:   a.bucket,
		Capability: dal.Capability{
			Read:   true,
			Write:  true,
			Stat:   true,
			Delete: true,
		},
	}
}

// Exists reports whether key names an object.
func (a *Accessor) Exists(ctx context.Context, key string) (bool, error) {
	fullKey, err := a.validateKey(key)
	if err != nil {
		return false, err
	}

	_, err = a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classify(fmt.Errorf("s3: head object: %w", err))
	}
	return true, nil
}

// Reader streams key starting at offset. An offset at or beyond the end of
// the object yields an empty stream.
func (a *Accessor) Reader(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, dal.ErrInvalidPath
	}
	fullKey, err := a.validateKey(key)
	if err != nil {
		return nil, err
	}

	in := &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(fullKey),
	}
	if offset > 0 {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	out, err := a.client.GetObject(ctx, in)
	if err != nil {
		if isNotFound(err) {
			return nil, dal.ErrNotFound
		}
		if isInvalidRange(err) {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		return nil, classify(fmt.Errorf("s3: get object: %w", err))
	}
	return &bodyReader{body: out.Body}, nil
}

// Writer opens an upload of key. Bytes are spooled to a temp file; Close
// uploads it and removes the file.
func (a *Accessor) Writer(ctx context.Context, key string) (io.WriteCloser, error) {
	fullKey, err := a.validateKey(key)
	if err != nil {
		return nil, err
	}
	file, err := a.createTemp()
	if err != nil {
		return nil, fmt.Errorf("s3: creating temp file: %w", err)
	}
	return &writer{acc: a, ctx: ctx, key: fullKey, file: file}, nil
}

// Delete removes key. S3 DeleteObject does not fail on missing keys.
func (a *Accessor) Delete(ctx context.Context, key string) error {
	fullKey, err := a.validateKey(key)
	if err != nil {
		return err
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil && !isNotFound(err) {
		return classify(fmt.Errorf("s3: delete object: %w", err))
	}
	return nil
}

// putFromFile uploads size bytes of file with a single PutObject.
func (a *Accessor) putFromFile(ctx context.Context, fullKey string, file io.ReadSeeker, size int64) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(fullKey),
		Body:          file,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return classify(fmt.Errorf("s3: put object: %w", err))
	}
	return nil
}

// putMultipartFromFile uploads file in parts read through io.SectionReader.
// A failed upload is aborted.
func (a *Accessor) putMultipartFromFile(ctx context.Context, fullKey string, file io.ReaderAt, size int64) error {
	if size > maxObjectSize {
		return fmt.Errorf("s3: object size %d exceeds maximum %d (5TB)", size, int64(maxObjectSize))
	}

	// Grow parts to stay under maxParts: ceil(size / maxParts).
	partSize := a.partSize
	if size > partSize*maxParts {
		partSize = (size + maxParts - 1) / maxParts
	}

	created, err := a.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return classify(fmt.Errorf("s3: create multipart upload: %w", err))
	}
	uploadID := created.UploadId

	// Abort with a fresh context so cleanup survives a canceled ctx.
	abort := func() {
		abortCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, _ = a.client.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(a.bucket),
			Key:      aws.String(fullKey),
			UploadId: uploadID,
		})
	}

	var parts []types.CompletedPart
	partNum := int32(0)
	for offset := int64(0); offset < size; offset += partSize {
		partNum++
		n := min(partSize, size-offset)
		out, err := a.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(a.bucket),
			Key:           aws.String(fullKey),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(partNum),
			Body:          io.NewSectionReader(file, offset, n),
			ContentLength: aws.Int64(n),
		})
		if err != nil {
			abort()
			return classify(fmt.Errorf("s3: upload part %d: %w", partNum, err))
		}
		parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNum)})
	}

	_, err = a.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(fullKey),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		abort()
		return classify(fmt.Errorf("s3: complete multipart upload: %w", err))
	}
	return nil
}

// validateKey validates and returns the full key for object operations.
func (a *Accessor) validateKey(key string) (string, error) {
	trimmed := strings.TrimLeft(key, "/")
	if trimmed == "" || strings.HasSuffix(trimmed, "/") {
		return "", dal.ErrInvalidPath
	}

	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", dal.ErrInvalidPath
	}
	return a.prefix + cleaned, nil
}

// -----------------------------------------------------------------------------
// Streams
// -----------------------------------------------------------------------------

// bodyReader marks transport failures of a response body as temporary so the
// retry layer can resume the download.
type bodyReader struct {
	body io.ReadCloser
}

func (r *bodyReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if err != nil && err != io.EOF {
		err = dal.Temporary(fmt.Errorf("s3: read body: %w", err))
	}
	return n, err
}

func (r *bodyReader) Close() error { return r.body.Close() }

type writer struct {
	acc    *Accessor
	ctx    context.Context
	key    string
	file   *os.File
	size   int64
	closed bool
	err    error
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, dal.ErrClosed
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("s3: writing temp file: %w", err)
	}
	return n, nil
}

// Close uploads the spooled bytes and removes the spool file.
func (w *writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	defer func() {
		_ = w.file.Close()
		_ = os.Remove(w.file.Name())
	}()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.err = fmt.Errorf("s3: seeking temp file: %w", err)
		return w.err
	}
	if w.size <= w.acc.maxPutSize {
		w.err = w.acc.putFromFile(w.ctx, w.key, w.file, w.size)
	} else {
		w.err = w.acc.putMultipartFromFile(w.ctx, w.key, w.file, w.size)
	}
	return w.err
}

// -----------------------------------------------------------------------------
// Error classification
// -----------------------------------------------------------------------------

// isNotFound checks if an error indicates the object was not found.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}

func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange"
}

// classify marks server-side faults and throttling as temporary.
func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.ErrorFault() == smithy.FaultServer {
		return dal.Temporary(err)
	}
	switch apiErr.ErrorCode() {
	case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "Throttling":
		return dal.Temporary(err)
	}
	return err
}
