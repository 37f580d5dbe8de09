package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() map[string]interface{} {
	return map[string]interface{}{
		"a": map[string]interface{}{
			"b": []interface{}{float64(1), float64(2), float64(3)},
		},
		"title": "studio",
	}
}

func TestSetThenGetReturnsAssignedValue(t *testing.T) {
	root := sampleTree()

	updated, err := Set(root, []string{"a", "b", "1"}, float64(99))
	require.NoError(t, err)

	got, ok := Get(updated, []string{"a", "b", "1"})
	require.True(t, ok)
	assert.Equal(t, float64(99), got)
}

func TestSetDoesNotMutateOriginal(t *testing.T) {
	root := sampleTree()

	_, err := Set(root, []string{"a", "b", "1"}, float64(99))
	require.NoError(t, err)

	original, ok := Get(root, []string{"a", "b", "1"})
	require.True(t, ok)
	assert.Equal(t, float64(2), original)
}

func TestSetCreatesNewMapKeyAtFinalSegment(t *testing.T) {
	root := sampleTree()

	updated, err := Set(root, []string{"a", "c"}, "new")
	require.NoError(t, err)

	got, ok := Get(updated, []string{"a", "c"})
	require.True(t, ok)
	assert.Equal(t, "new", got)

	_, ok = Get(root, []string{"a", "c"})
	assert.False(t, ok)
}

func TestSetFailsOnAbsentIntermediate(t *testing.T) {
	root := sampleTree()

	_, err := Set(root, []string{"missing", "x"}, 1)
	require.Error(t, err)
}

func TestSetFailsOnOutOfRangeIndex(t *testing.T) {
	root := sampleTree()

	_, err := Set(root, []string{"a", "b", "7"}, 1)
	require.Error(t, err)

	_, err = Set(root, []string{"a", "b", "-1"}, 1)
	require.Error(t, err)
}

func TestSetFailsOnEmptyPath(t *testing.T) {
	_, err := Set(sampleTree(), nil, 1)
	require.Error(t, err)
}

func TestSetFailsThroughScalar(t *testing.T) {
	_, err := Set(sampleTree(), []string{"title", "nested"}, 1)
	require.Error(t, err)
}

func TestGetAbsentPath(t *testing.T) {
	root := sampleTree()

	_, ok := Get(root, []string{"a", "z"})
	assert.False(t, ok)

	_, ok = Get(root, []string{"a", "b", "9"})
	assert.False(t, ok)

	_, ok = Get(root, []string{"title", "deeper"})
	assert.False(t, ok)
}

func TestGetEmptyPathReturnsRoot(t *testing.T) {
	root := sampleTree()

	got, ok := Get(root, nil)
	require.True(t, ok)
	assert.Equal(t, root, got)
}
