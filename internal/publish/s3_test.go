package publish

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockS3Client stores uploaded objects in memory.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failPut {
		return nil, fmt.Errorf("simulated upload failure")
	}
	content, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(params.Key)] = content
	return &s3.PutObjectOutput{}, nil
}

func TestPublish(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/out/9_generated.png", []byte("png"), 0o644))

	mock := newMockS3Client()
	p := NewSpacesPublisherWithClient(mock, "fantasyfootball", "https://cdn.example/", fs)

	url, err := p.Publish(context.Background(), "/out/9_generated.png", 9)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/image_pipeline/9.png", url)
	assert.Equal(t, []byte("png"), mock.objects["image_pipeline/9.png"])

	// The local file must survive publishing.
	exists, err := afero.Exists(fs, "/out/9_generated.png")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPublish_UploadError(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/out/9.png", []byte("png"), 0o644))

	mock := newMockS3Client()
	mock.failPut = true
	p := NewSpacesPublisherWithClient(mock, "bucket", "https://cdn.example", fs)

	_, err := p.Publish(context.Background(), "/out/9.png", 9)
	assert.Error(t, err)
}

func TestPublish_MissingFile(t *testing.T) {
	p := NewSpacesPublisherWithClient(newMockS3Client(), "bucket", "https://cdn.example", afero.NewMemMapFs())

	_, err := p.Publish(context.Background(), "/missing.png", 9)
	assert.Error(t, err)
}

func TestRegionFromOrigin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		origin string
		want   string
	}{
		{"https://fantasyfootball.sgp1.digitaloceanspaces.com", "sgp1"},
		{"https://assets.nyc3.digitaloceanspaces.com", "nyc3"},
		{"https://localhost", "sgp1"},
		{"", "sgp1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RegionFromOrigin(tt.origin), "origin %q", tt.origin)
	}
}

func TestNoop(t *testing.T) {
	url, err := Noop{}.Publish(context.Background(), "/anything.png", 1)
	require.NoError(t, err)
	assert.Empty(t, url)
}
