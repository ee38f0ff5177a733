package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestUpsertChildRecordCount_LeavesMissingRowAlone(t *testing.T) {
	store := New()
	store.PutResource(models.Resource{ID: "keep"})

	require.NoError(t, store.UpsertChildRecordCount(context.Background(), "keep", 4))
	require.NoError(t, store.UpsertChildRecordCount(context.Background(), "gone", 7))

	r, ok := store.Resource("keep")
	require.True(t, ok)
	assert.Equal(t, 4, r.ChildRecordCount)
	_, ok = store.Resource("gone")
	assert.False(t, ok)
	assert.Equal(t, 2, store.Calls(OpUpsertCount))
}

func TestWithTx_RestoresOnError(t *testing.T) {
	store := New()
	store.PutResource(models.Resource{ID: "keep"})
	store.PutResource(models.Resource{ID: "dup"})
	store.PutChild(models.ChildRecord{ID: "c1", ParentID: "dup", Method: "GET", Path: "/a"})

	err := store.WithTx(context.Background(), func(ctx context.Context) error {
		if _, err := store.Repoint(ctx, []string{"dup"}, "keep"); err != nil {
			return err
		}
		if _, err := store.DeleteByIDs(ctx, []string{"dup"}); err != nil {
			return err
		}
		return errors.New("commit failed")
	})
	require.Error(t, err)

	_, ok := store.Resource("dup")
	assert.True(t, ok)
	assert.Len(t, store.ChildrenOf("dup"), 1)
	assert.Empty(t, store.ChildrenOf("keep"))
}

func TestFail_ClearedByNil(t *testing.T) {
	store := New()
	store.Fail(OpRepoint, errors.New("down"))

	_, err := store.Repoint(context.Background(), []string{"a"}, "b")
	require.Error(t, err)

	store.Fail(OpRepoint, nil)
	_, err = store.Repoint(context.Background(), []string{"a"}, "b")
	assert.NoError(t, err)
}
