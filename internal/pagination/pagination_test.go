package pagination

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, offset := range []int{0, 1, 50, 100, 9999} {
		cursor := CreateCursor(offset)
		parsed := ParseCursor(cursor)
		require.True(t, parsed.Valid, "offset %d", offset)
		assert.Equal(t, offset, parsed.Offset)
	}
}

func TestParseCursorRejects(t *testing.T) {
	encode := func(s string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(s))
	}

	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64url", "!!!not-base64!!!"},
		{"not json", encode("hello world")},
		{"json string not object", encode(`"surprise"`)},
		{"json array not object", encode(`[1,2,3]`)},
		{"missing offset", encode(`{"v":1}`)},
		{"negative offset", encode(`{"offset":-1,"v":1}`)},
		{"non-integer offset", encode(`{"offset":1.5,"v":1}`)},
		{"string offset", encode(`{"offset":"5","v":1}`)},
		{"wrong version", encode(`{"offset":0,"v":2}`)},
		{"unknown field", encode(`{"offset":0,"v":1,"x":true}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := ParseCursor(tt.cursor)
			assert.False(t, parsed.Valid)
			assert.Error(t, parsed.Err)
		})
	}
}

func TestPaginateWalksWholeList(t *testing.T) {
	items := make([]int, 125)
	for i := range items {
		items[i] = i
	}

	var collected []int
	cursor := ""
	pages := 0
	for {
		page, err := Paginate(items, cursor, 50)
		require.NoError(t, err)
		require.LessOrEqual(t, len(page.Items), 50)
		collected = append(collected, page.Items...)
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, items, collected)
	assert.Equal(t, 3, pages)
}

func TestPaginatePageBoundaries(t *testing.T) {
	items := make([]string, 125)
	for i := range items {
		items[i] = fmt.Sprintf("tool-%03d", i)
	}

	first, err := Paginate(items, "", 0) // default page size
	require.NoError(t, err)
	assert.Len(t, first.Items, 50)
	assert.Equal(t, CreateCursor(50), first.NextCursor)

	second, err := Paginate(items, first.NextCursor, 0)
	require.NoError(t, err)
	assert.Len(t, second.Items, 50)
	assert.Equal(t, CreateCursor(100), second.NextCursor)

	third, err := Paginate(items, second.NextCursor, 0)
	require.NoError(t, err)
	assert.Len(t, third.Items, 25)
	assert.Empty(t, third.NextCursor)
}

func TestPaginateClampsPageSize(t *testing.T) {
	items := make([]int, 500)

	page, err := Paginate(items, "", 1000)
	require.NoError(t, err)
	assert.Len(t, page.Items, MaxPageSize)

	page, err = Paginate(items, "", -5)
	require.NoError(t, err)
	assert.Len(t, page.Items, DefaultPageSize)

	page, err = Paginate(items, "", 1)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestPaginateRejectsBadCursors(t *testing.T) {
	items := []int{1, 2, 3}

	_, err := Paginate(items, "###", 10)
	assert.Error(t, err)

	_, err = Paginate(items, CreateCursor(99), 10)
	assert.Error(t, err, "out-of-range offset must be rejected")
}

func TestPaginateEmptyList(t *testing.T) {
	page, err := Paginate([]int{}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextCursor)
}

func TestPaginateExactBoundary(t *testing.T) {
	items := make([]int, 100)
	page, err := Paginate(items, CreateCursor(50), 50)
	require.NoError(t, err)
	assert.Len(t, page.Items, 50)
	assert.Empty(t, page.NextCursor, "no next cursor when the page ends exactly at the list end")
}
