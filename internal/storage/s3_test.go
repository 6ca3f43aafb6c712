package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectAPI struct {
	exists  bool
	made    []string
	puts    map[string]minio.PutObjectOptions
	bodies  map[string][]byte
	statErr error
}

func newFakeObjectAPI() *fakeObjectAPI {
	return &fakeObjectAPI{puts: map[string]minio.PutObjectOptions{}, bodies: map[string][]byte{}}
}

func (f *fakeObjectAPI) BucketExists(context.Context, string) (bool, error) {
	return f.exists, nil
}

func (f *fakeObjectAPI) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func (f *fakeObjectAPI) PutObject(_ context.Context, _, object string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.puts[object] = opts
	f.bodies[object] = b
	return minio.UploadInfo{Key: object, Size: int64(len(b))}, nil
}

func (f *fakeObjectAPI) StatObject(_ context.Context, _, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if f.statErr != nil {
		return minio.ObjectInfo{}, f.statErr
	}
	if _, ok := f.bodies[object]; !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return minio.ObjectInfo{Key: object, ContentType: f.puts[object].ContentType}, nil
}

func (f *fakeObjectAPI) GetObject(context.Context, string, string, minio.GetObjectOptions) (*minio.Object, error) {
	return nil, errors.New("not supported by fake")
}

func TestS3(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a missing bucket", func(t *testing.T) {
		api := newFakeObjectAPI()
		s := &S3{client: api, bucket: "medicine-store", region: "us-east-1"}

		require.NoError(t, s.EnsureBucket(ctx))
		assert.Equal(t, []string{"medicine-store"}, api.made)

		api.exists = true
		api.made = nil
		require.NoError(t, s.EnsureBucket(ctx))
		assert.Empty(t, api.made)
	})

	t.Run("uploads keep their content type", func(t *testing.T) {
		api := newFakeObjectAPI()
		uploads := NewUploads(&S3{client: api, bucket: "b"}, 1<<20)

		data := pngBytes(t)
		key, err := uploads.Save(ctx, "rx.png", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "image/png", api.puts[key].ContentType)
		assert.Equal(t, data, api.bodies[key])
	})

	t.Run("missing key maps to not found", func(t *testing.T) {
		s := &S3{client: newFakeObjectAPI(), bucket: "b"}

		_, _, err := s.Get(ctx, "00000000-0000-0000-0000-000000000000.png")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("other stat errors are returned", func(t *testing.T) {
		api := newFakeObjectAPI()
		api.statErr = minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}
		s := &S3{client: api, bucket: "b"}

		_, _, err := s.Get(ctx, "00000000-0000-0000-0000-000000000000.png")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint   string
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{endpoint: "rustfs:9000", wantHost: "rustfs:9000"},
		{endpoint: "http://rustfs:9000", wantHost: "rustfs:9000"},
		{endpoint: "https://s3.ap-southeast-1.amazonaws.com", wantHost: "s3.ap-southeast-1.amazonaws.com", wantSecure: true},
		{endpoint: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			host, secure, err := parseEndpoint(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantSecure, secure)
		})
	}
}
