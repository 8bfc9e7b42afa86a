package s3blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// fakeAPI serves a fixed key set, two keys per listing page.
type fakeAPI struct {
	objects map[string]string
	keys    []string
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var matched []string
	for _, k := range f.keys {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			matched = append(matched, k)
		}
	}
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range matched {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := min(start+2, len(matched))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(matched))}
	for _, k := range matched[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k])))})
	}
	if end < len(matched) {
		out.NextContinuationToken = aws.String(matched[end])
	}
	return out, nil
}

func newFake() *fakeAPI {
	f := &fakeAPI{objects: map[string]string{
		"raw/2021/06/a.zip": "a",
		"raw/2021/06/b.zip": "bb",
		"raw/2021/06/c.zip": "ccc",
		"raw/2021/07/d.zip": "dddd",
	}}
	f.keys = []string{"raw/2021/06/a.zip", "raw/2021/06/b.zip", "raw/2021/06/c.zip", "raw/2021/07/d.zip"}
	return f
}

func TestReader_ListPaginates(t *testing.T) {
	r := &Reader{api: newFake(), bucket: "b"}
	infos, err := r.List(context.Background(), "raw/2021/06/")
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "raw/2021/06/c.zip", infos[2].Key)
	assert.Equal(t, int64(3), infos[2].Size)
}

func TestReader_Get(t *testing.T) {
	r := &Reader{api: newFake(), bucket: "b"}
	ctx := context.Background()

	rc, err := r.Get(ctx, "raw/2021/07/d.zip")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "dddd", string(body))

	_, err = r.Get(ctx, "raw/nope.zip")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.False(t, isNotFound(errors.New("timeout")))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
}
