package objectstore

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeS3 是一个只支持 path-style PUT/GET/HEAD 的最小 S3 服务
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	failGets int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")

	if bucket != "svd-bucket" {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if f.failGets > 0 {
			f.failGets--
			writeS3Error(w, http.StatusServiceUnavailable, "SlowDown")
			return
		}
		body, ok := f.objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>`+code+`</Code><Message>fake</Message><RequestId>req-1</RequestId></Error>`)
}

func newTestS3Store(t *testing.T, handler http.Handler) *S3Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		Retryer:      aws.NopRetryer{},
		HTTPClient:   srv.Client(),
	})
	return NewS3Store(client, zap.NewNop())
}

func TestS3Store_PutThenGet(t *testing.T) {
	fake := newFakeS3()
	store := newTestS3Store(t, fake)
	ctx := context.Background()

	loc := Location{Bucket: "svd-bucket", Key: "async_inference/input/abc.json"}
	require.NoError(t, store.Put(ctx, loc, []byte(`{"fps":6}`), "application/json"))

	fake.mu.Lock()
	assert.Equal(t, `{"fps":6}`, string(fake.objects["async_inference/input/abc.json"]))
	assert.Equal(t, "application/json", fake.types["async_inference/input/abc.json"])
	fake.mu.Unlock()

	got, err := store.Get(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, `{"fps":6}`, string(got))
}

func TestS3Store_GetMissingKeyIsNotFound(t *testing.T) {
	store := newTestS3Store(t, newFakeS3())

	_, err := store.Get(context.Background(), Location{Bucket: "svd-bucket", Key: "async_inference/output/none.out"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransient(err))
}

func TestS3Store_MissingBucketIsNotNotFound(t *testing.T) {
	store := newTestS3Store(t, newFakeS3())

	_, err := store.Get(context.Background(), Location{Bucket: "other", Key: "k"})
	require.Error(t, err)
	assert.False(t, IsNotFound(err), "NoSuchBucket must be a fatal read error")
}

func TestS3Store_ServiceUnavailableIsTransient(t *testing.T) {
	fake := newFakeS3()
	fake.failGets = 1
	store := newTestS3Store(t, fake)

	_, err := store.Get(context.Background(), Location{Bucket: "svd-bucket", Key: "k"})
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.True(t, IsTransient(err))
}

func TestS3Store_Ping(t *testing.T) {
	store := newTestS3Store(t, newFakeS3())

	assert.NoError(t, store.Ping(context.Background(), "svd-bucket"))
	assert.Error(t, store.Ping(context.Background(), "missing"))
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func responseError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New("http error"),
		},
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not found", err: ErrNotFound, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "network timeout", err: &net.OpError{Op: "read", Err: timeoutError{}}, want: true},
		{name: "503", err: responseError(http.StatusServiceUnavailable), want: true},
		{name: "429", err: responseError(http.StatusTooManyRequests), want: true},
		{name: "403", err: responseError(http.StatusForbidden), want: false},
		{name: "slow down code", err: &smithy.GenericAPIError{Code: "SlowDown"}, want: true},
		{name: "access denied code", err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
