package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

// multipartUpload tracks an in-progress multipart upload.
type multipartUpload struct {
	parts map[int32][]byte
}

// mockClient is a test double for API.
type mockClient struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	uploads  map[string]*multipartUpload // uploadID -> upload
	uploadID int

	// Call counters for test assertions
	putCalls    int
	getCalls    int
	createCalls int
	partCalls   int
	abortCalls  int

	// putErr, if set, is returned by PutObject after reading one byte.
	putErr error
	// partFailOnCall makes the Nth UploadPart call fail (0 disables).
	partFailOnCall int
	// getErrs are returned by successive GetObject calls before succeeding.
	getErrs []error
	// bodyErrAfter, if > 0, makes the next body fail once after n bytes.
	bodyErrAfter int
}

func newMockClient() *mockClient {
	return &mockClient{
		objects: make(map[string][]byte),
		uploads: make(map[string]*multipartUpload),
	}
}

func (m *mockClient) object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

func (m *mockClient) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	m.putCalls++
	putErr := m.putErr
	m.mu.Unlock()

	if putErr != nil {
		_, _ = io.CopyN(io.Discard, params.Body, 1)
		return nil, putErr
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockClient) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	m.getCalls++
	if len(m.getErrs) > 0 {
		err := m.getErrs[0]
		m.getErrs = m.getErrs[1:]
		m.mu.Unlock()
		return nil, err
	}
	data, exists := m.objects[aws.ToString(params.Key)]
	failAfter := m.bodyErrAfter
	m.bodyErrAfter = 0
	m.mu.Unlock()

	if !exists {
		return nil, &types.NoSuchKey{}
	}

	// Only open-ended ranges ("bytes=N-") are issued by the accessor.
	if params.Range != nil {
		var start int64
		if _, err := fmt.Sscanf(strings.TrimSuffix(aws.ToString(params.Range), "-"), "bytes=%d", &start); err != nil {
			return nil, &apiError{code: "InvalidArgument", message: err.Error()}
		}
		if start >= int64(len(data)) {
			return nil, &apiError{code: "InvalidRange", message: "range not satisfiable"}
		}
		data = data[start:]
	}

	var body io.ReadCloser = io.NopCloser(bytes.NewReader(data))
	if failAfter > 0 && failAfter < len(data) {
		body = io.NopCloser(io.MultiReader(
			bytes.NewReader(data[:failAfter]),
			errReader{io.ErrUnexpectedEOF},
		))
	}
	return &s3.GetObjectOutput{Body: body}, nil
}

func (m *mockClient) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, exists := m.object(aws.ToString(params.Key)); !exists {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockClient) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objects, aws.ToString(params.Key))
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockClient) CreateMultipartUpload(_ context.Context, params *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	m.uploadID++
	uploadID := fmt.Sprintf("upload-%d", m.uploadID)
	m.uploads[uploadID] = &multipartUpload{parts: make(map[int32][]byte)}

	return &s3.CreateMultipartUploadOutput{
		Bucket:   params.Bucket,
		Key:      params.Key,
		UploadId: aws.String(uploadID),
	}, nil
}

func (m *mockClient) UploadPart(_ context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.partCalls++
	if m.partFailOnCall > 0 && m.partCalls >= m.partFailOnCall {
		return nil, &apiError{code: "InternalError", message: "simulated upload part failure", fault: smithy.FaultServer}
	}
	upload, ok := m.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, &apiError{code: "NoSuchUpload", message: "upload not found"}
	}
	partNum := aws.ToInt32(params.PartNumber)
	upload.parts[partNum] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("\"%d-%d\"", partNum, len(data)))}, nil
}

func (m *mockClient) CompleteMultipartUpload(_ context.Context, params *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	uploadID := aws.ToString(params.UploadId)

	m.mu.Lock()
	defer m.mu.Unlock()

	upload, ok := m.uploads[uploadID]
	if !ok {
		return nil, &apiError{code: "NoSuchUpload", message: "upload not found"}
	}
	var assembled []byte
	for _, part := range params.MultipartUpload.Parts {
		assembled = append(assembled, upload.parts[aws.ToInt32(part.PartNumber)]...)
	}
	m.objects[aws.ToString(params.Key)] = assembled
	delete(m.uploads, uploadID)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (m *mockClient) AbortMultipartUpload(_ context.Context, params *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.mu.Lock()
	m.abortCalls++
	delete(m.uploads, aws.ToString(params.UploadId))
	m.mu.Unlock()
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (m *mockClient) pendingUploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uploads)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// apiError implements smithy.APIError for testing.
type apiError struct {
	code    string
	message string
	fault   smithy.ErrorFault
}

func (e *apiError) Error() string                 { return e.code + ": " + e.message }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.message }
func (e *apiError) ErrorFault() smithy.ErrorFault { return e.fault }
