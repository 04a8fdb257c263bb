package esclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{Timestamp: "2026-07-30T12:00:00Z", DocID: "doc-42", Fingerprint: "abc123"}
	encoded := c.Encode()
	decoded, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestParseCursorEmptyString(t *testing.T) {
	c, err := ParseCursor("")
	require.NoError(t, err)
	assert.Equal(t, Cursor{}, c)
}

func TestParseCursorMalformed(t *testing.T) {
	_, err := ParseCursor("not-valid-base64!!!")
	assert.Error(t, err)
}

func TestFingerprintStableUnderFilterOrder(t *testing.T) {
	req1 := QueryRequest{
		Indices: []string{"b-index", "a-index"},
		Filters: []Filter{
			{Field: "source.ip", Op: FilterTerm, Value: "1.2.3.4"},
			{Field: "destination.port", Op: FilterTerm, Value: 443},
		},
		SortOrder: SortDesc,
		PageSize:  50,
	}
	req2 := QueryRequest{
		Indices: []string{"a-index", "b-index"},
		Filters: []Filter{
			{Field: "destination.port", Op: FilterTerm, Value: 443},
			{Field: "source.ip", Op: FilterTerm, Value: "1.2.3.4"},
		},
		SortOrder: SortDesc,
		PageSize:  50,
	}
	assert.Equal(t, Fingerprint(req1), Fingerprint(req2))
}

func TestFingerprintChangesWithPageSize(t *testing.T) {
	base := QueryRequest{Indices: []string{"idx"}, SortOrder: SortDesc, PageSize: 50}
	changed := base
	changed.PageSize = 100
	assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))
}

func TestMatchesFingerprint(t *testing.T) {
	req := QueryRequest{Indices: []string{"idx"}, PageSize: 10}
	fp := Fingerprint(req)
	c := Cursor{Timestamp: "2026-07-30T12:00:00Z", DocID: "d1", Fingerprint: fp}
	assert.True(t, c.MatchesFingerprint(fp))
	assert.False(t, c.MatchesFingerprint("different"))
}

func TestDeepPageGuard(t *testing.T) {
	assert.True(t, DeepPageGuardExceeded(101, 100))
	assert.False(t, DeepPageGuardExceeded(100, 100))
}

func TestCursorIsAfterOrdersByTimestampThenDocID(t *testing.T) {
	c := Cursor{Timestamp: "2026-07-30T12:00:00Z", DocID: "m"}
	assert.True(t, c.IsAfter("2026-07-30T11:00:00Z", "z"))
	assert.False(t, c.IsAfter("2026-07-30T13:00:00Z", "a"))
	assert.True(t, c.IsAfter("2026-07-30T12:00:00Z", "a"))
	assert.False(t, c.IsAfter("2026-07-30T12:00:00Z", "z"))
}

func TestNormalizeTimestamp(t *testing.T) {
	assert.Equal(t, "2026-07-30T00:00:00Z", NormalizeTimestamp(int64(1785369600000)))
	assert.Equal(t, "raw-string", NormalizeTimestamp("raw-string"))
}
