package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ id int64 }

func TestBuildPageInfo(t *testing.T) {
	rows := []*row{{1}, {2}, {3}}

	page, info := BuildPageInfo(rows, 2, 0)
	require.Len(t, page, 2)
	assert.True(t, info.HasMore)

	offset, err := Pagination{PageToken: info.NextPageToken}.Offset()
	require.NoError(t, err)
	assert.Equal(t, 2, offset)

	page, info = BuildPageInfo(rows, 3, 0)
	assert.Len(t, page, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestOffsetRejectsGarbage(t *testing.T) {
	_, err := Pagination{PageToken: "%%%"}.Offset()
	assert.ErrorIs(t, err, ErrInvalidPageToken)

	offset, err := Pagination{}.Offset()
	require.NoError(t, err)
	assert.Zero(t, offset)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 10_000}.Limit())
	assert.Equal(t, 7, Pagination{PageSize: 7}.Limit())
}
