package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	objects map[string][]byte
}

func (f *fakeObjects) ListKeys(_ context.Context, prefix string) ([]string, error) {
	var names []string

	for k := range f.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			names = append(names, k[len(prefix):])
		}
	}

	return names, nil
}

func (f *fakeObjects) GetObject(_ context.Context, key string) ([]byte, error) {
	return f.objects[key], nil
}

func TestS3Reader(t *testing.T) {
	ctx := context.Background()

	r := &s3Reader{
		bucket: "ci",
		prefix: "e2e/",
		objects: &fakeObjects{objects: map[string][]byte{
			"e2e/latest.json": []byte("latest"),
			"e2e/snapshots/report-2024-01-01T00-00-00.json": []byte("jan"),
			"e2e/snapshots/report-2024-02-01T00-00-00.json": []byte("feb"),
			"e2e/snapshots/.reportoor-write-test":           []byte("x"),
		}},
	}

	assert.Equal(t, "s3://ci/e2e", r.Describe())

	latest, err := r.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("latest"), latest)

	names, err := r.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"report-2024-02-01T00-00-00.json",
		"report-2024-01-01T00-00-00.json",
	}, names)

	data, err := r.GetSnapshot(ctx, "report-2024-01-01T00-00-00.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("jan"), data)

	_, err = r.GetSnapshot(ctx, "latest.json")
	require.ErrorIs(t, err, ErrInvalidSnapshotName)
}
