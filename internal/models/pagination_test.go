package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPageInfoMiddlePage(t *testing.T) {
	info := NewPageInfo(2, 10, 35)

	assert.Equal(t, 4, info.TotalPages)
	assert.True(t, info.HasNext)
	assert.True(t, info.HasPrevious)
	require.NotNil(t, info.NextPage)
	assert.Equal(t, 3, *info.NextPage)
	require.NotNil(t, info.PreviousPage)
	assert.Equal(t, 1, *info.PreviousPage)
	assert.Equal(t, int64(11), info.StartIndex)
	assert.Equal(t, int64(20), info.EndIndex)
}

func TestNewPageInfoLastPartialPage(t *testing.T) {
	info := NewPageInfo(4, 10, 35)

	assert.False(t, info.HasNext)
	assert.Nil(t, info.NextPage)
	assert.Equal(t, int64(31), info.StartIndex)
	assert.Equal(t, int64(35), info.EndIndex, "end index clamps to the total")
}

func TestNewPageInfoEmptyResult(t *testing.T) {
	info := NewPageInfo(1, 10, 0)

	assert.Zero(t, info.TotalPages)
	assert.False(t, info.HasNext)
	assert.False(t, info.HasPrevious)
	assert.Zero(t, info.StartIndex)
	assert.Zero(t, info.EndIndex)
}

func TestNewPageInfoSinglePage(t *testing.T) {
	info := NewPageInfo(1, 100, 7)

	assert.Equal(t, 1, info.TotalPages)
	assert.False(t, info.HasNext)
	assert.Equal(t, int64(1), info.StartIndex)
	assert.Equal(t, int64(7), info.EndIndex)
}
