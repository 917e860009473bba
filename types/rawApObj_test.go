package types_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftwood-social/driftwood/types"
)

func TestRawApObjNestedGet(t *testing.T) {
	t.Parallel()

	raw, err := types.LoadAsRawApObj([]byte(`{
		"id": "https://remote.example/activities/1",
		"type": "Delete",
		"object": {"id": "https://remote.example/statuses/1", "type": "Tombstone"}
	}`))
	require.NoError(t, err)

	require.Equal(t, "Delete", raw.MustGetString("type"))
	require.Equal(t, "https://remote.example/statuses/1", raw.MustGetString("object.id"))

	obj, ok := raw.GetRaw("object")
	require.True(t, ok)
	require.Equal(t, "Tombstone", obj.MustGetString("type"))
}

func TestRawApObjMissingKey(t *testing.T) {
	t.Parallel()

	raw, err := types.LoadAsRawApObj([]byte(`{"type": "Delete"}`))
	require.NoError(t, err)

	_, ok := raw.GetString("object.id")
	require.False(t, ok)
	require.Equal(t, "", raw.MustGetString("actor"))
}
