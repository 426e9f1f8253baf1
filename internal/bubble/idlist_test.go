package bubble

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDList_CSV(t *testing.T) {
	input := "\xEF\xBB\xBFName,unique id,Modified Date\n" +
		"Alpha,id-1,2024-03-01T10:00:00.000Z\n" +
		"Beta,id-2,\n" +
		",,\n" +
		"Alpha again,id-1,2024-04-01T10:00:00.000Z\n"

	stamps, err := ParseIDList(strings.NewReader(input), "")
	require.NoError(t, err)
	require.Len(t, stamps, 2)
	assert.Equal(t, "id-1", stamps[0].ID)
	assert.Equal(t, time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC), stamps[0].ModifiedDate)
	assert.Equal(t, "id-2", stamps[1].ID)
	assert.False(t, stamps[1].HasDate())
}

func TestParseIDList_UTF16(t *testing.T) {
	text := "unique id,Modified Date\nid-9,2024-03-01T10:00:00.000Z\n"
	// little-endian UTF-16 with byte order mark, as written by spreadsheet "Unicode text" exports
	raw := []byte{0xFF, 0xFE}
	for _, r := range text {
		raw = append(raw, byte(r), 0)
	}

	stamps, err := ParseIDList(bytes.NewReader(raw), "csv")
	require.NoError(t, err)
	require.Len(t, stamps, 1)
	assert.Equal(t, "id-9", stamps[0].ID)
	assert.True(t, stamps[0].HasDate())
}

func TestParseIDList_JSON(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		stamps, err := ParseIDList(strings.NewReader(`  [{"id":"a","modified_date":"2024-01-02"},{"_id":"b"}]`), "")
		require.NoError(t, err)
		require.Len(t, stamps, 2)
		assert.True(t, stamps[0].HasDate())
		assert.Equal(t, "b", stamps[1].ID)
	})

	t.Run("wrapped", func(t *testing.T) {
		stamps, err := ParseIDList(strings.NewReader(`{"items":[{"id":"a"}]}`), "json")
		require.NoError(t, err)
		assert.Len(t, stamps, 1)
	})
}

func TestParseIDList_Errors(t *testing.T) {
	_, err := ParseIDList(strings.NewReader("name,phone\nx,y\n"), "csv")
	assert.ErrorIs(t, err, ErrMissingIDColumn)

	_, err = ParseIDList(strings.NewReader("[]"), "json")
	assert.ErrorIs(t, err, ErrEmptyIDList)

	_, err = ParseIDList(strings.NewReader("x"), "xml")
	assert.Error(t, err)

	_, err = ParseIDList(strings.NewReader("unique id,modified date\nid-1,garbage\n"), "csv")
	assert.Error(t, err)
}
