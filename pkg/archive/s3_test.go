package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/models"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver_Archive(t *testing.T) {
	putter := &fakePutter{}
	a := NewS3ArchiverWithClient(putter, "archive-bucket", "consolidations", zapadapter.NewZapEctoLogger(zap.NewNop(), nil))

	snapshot := models.ArchiveSnapshot{
		RunID:     "run-1",
		KeepID:    "core",
		Resources: []models.Resource{{ID: "internal", Name: "Internal"}},
	}
	require.NoError(t, a.Archive(context.Background(), snapshot))

	assert.Equal(t, "archive-bucket", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "consolidations/core/run-1.json", aws.ToString(putter.input.Key))

	var got models.ArchiveSnapshot
	require.NoError(t, json.Unmarshal(putter.body, &got))
	assert.Equal(t, "internal", got.Resources[0].ID)
}

func TestS3Archiver_Error(t *testing.T) {
	a := NewS3ArchiverWithClient(&fakePutter{err: errors.New("AccessDenied")}, "b", "", zapadapter.NewZapEctoLogger(zap.NewNop(), nil))
	err := a.Archive(context.Background(), models.ArchiveSnapshot{RunID: "r", KeepID: "k"})
	assert.ErrorContains(t, err, "AccessDenied")
}
