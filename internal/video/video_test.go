package video

import (
	"context"
	"testing"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/registry"
	"github.com/stretchr/testify/require"
)

type nopBackend struct{}

func (nopBackend) Submit(context.Context, Request) (*OperationHandle, error) { return nil, nil }
func (nopBackend) Poll(context.Context, *OperationHandle) (*OperationHandle, error) {
	return nil, nil
}

func TestOperationHandle_ArtifactURI(t *testing.T) {
	t.Parallel()

	var nilHandle *OperationHandle
	require.Empty(t, nilHandle.ArtifactURI())
	require.Empty(t, (&OperationHandle{Done: true}).ArtifactURI())
	require.Empty(t, (&OperationHandle{Done: true, Response: &Response{GeneratedVideos: []GeneratedVideo{{}}}}).ArtifactURI())

	h := &OperationHandle{Done: true, Response: &Response{GeneratedVideos: []GeneratedVideo{
		{Video: &Video{URI: " "}},
		{Video: &Video{URI: "https://example.com/a.mp4"}},
	}}}
	require.Equal(t, "https://example.com/a.mp4", h.ArtifactURI())
}

func TestRouter(t *testing.T) {
	t.Parallel()

	reg := registry.Default()
	veo, err := reg.Get("veo-3.0-generate-001")
	require.NoError(t, err)
	jimeng, err := reg.Get("jimeng-v30")
	require.NoError(t, err)

	r := Router{registry.ProviderGoogle: nopBackend{}}
	require.True(t, r.Available(veo))
	require.False(t, r.Available(jimeng))

	_, err = r.For(jimeng)
	require.True(t, internalerrors.IsConfiguration(err))

	b, err := r.For(veo)
	require.NoError(t, err)
	require.NotNil(t, b)
}

func TestErrorDetail_Error(t *testing.T) {
	t.Parallel()

	require.Equal(t, "operation failed (code=8): quota exceeded", (&ErrorDetail{Code: 8, Message: "quota exceeded"}).Error())
	require.Equal(t, "operation failed: boom", (&ErrorDetail{Message: "boom"}).Error())
}
