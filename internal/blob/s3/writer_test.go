package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUploads records single-part uploads. Multipart calls are not expected
// for bodies below the minimum part size.
type fakeUploads struct {
	objects      map[string][]byte
	contentTypes map[string]string
	err          error
}

func newFakeUploads() *fakeUploads {
	return &fakeUploads{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (f *fakeUploads) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = body
	f.contentTypes[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

var errMultipart = errors.New("unexpected multipart call")

func (f *fakeUploads) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *fakeUploads) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeUploads) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeUploads) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

func TestWriter_Put(t *testing.T) {
	api := newFakeUploads()
	w := &Writer{api: api, bucket: "b"}
	ctx := context.Background()

	require.NoError(t, w.Put(ctx, "tables/a.zip", bytes.NewReader([]byte("zip")), ""))
	assert.Equal(t, "zip", string(api.objects["tables/a.zip"]))
	assert.Equal(t, "application/zip", api.contentTypes["tables/a.zip"])

	require.NoError(t, w.Put(ctx, "tables/a.csv", bytes.NewReader([]byte("csv")), "text/csv"))
	assert.Equal(t, "text/csv", api.contentTypes["tables/a.csv"])

	api.err = errors.New("denied")
	err := w.Put(ctx, "tables/b.zip", bytes.NewReader(nil), "")
	assert.ErrorContains(t, err, "s3blob: put tables/b.zip: denied")
}

func TestWriter_PutMultipartSmallBody(t *testing.T) {
	api := newFakeUploads()
	w := &Writer{api: api, bucket: "b"}

	require.NoError(t, w.PutMultipart(context.Background(), "tables/big.zip", bytes.NewReader([]byte("small")), 1))
	assert.Equal(t, "small", string(api.objects["tables/big.zip"]))
	assert.Equal(t, "application/zip", api.contentTypes["tables/big.zip"])
}
