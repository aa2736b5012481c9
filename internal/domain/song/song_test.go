package song

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCatalogID(t *testing.T) {
	tests := []struct {
		identity string
		expected bool
	}{
		{"1868553", true},
		{"0", true},
		{"", false},
		{"/home/user/Music/WYMusic/song.mp3", false},
		{"123abc", false},
		{"12 34", false},
	}

	for _, tt := range tests {
		t.Run(tt.identity, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsCatalogID(tt.identity))
		})
	}
}

func TestFileNameRoundTrip(t *testing.T) {
	base := FileName("Lemon", []string{"米津玄師"}, "536622304")
	assert.Equal(t, "Lemon__米津玄師__536622304", base)

	name, artists, id, ok := ParseFileName(base + ".mp3")
	assert.True(t, ok)
	assert.Equal(t, "Lemon", name)
	assert.Equal(t, []string{"米津玄師"}, artists)
	assert.Equal(t, "536622304", id)
}

func TestFileNameMultipleArtists(t *testing.T) {
	base := FileName("Duet", []string{"Alice", "Bob"}, "42")

	name, artists, id, ok := ParseFileName(base)
	assert.True(t, ok)
	assert.Equal(t, "Duet", name)
	assert.Equal(t, []string{"Alice", "Bob"}, artists)
	assert.Equal(t, "42", id)
}

func TestFileNameSanitizesSeparators(t *testing.T) {
	base := FileName("odd__name/slash", []string{"A__B"}, "7")

	_, _, id, ok := ParseFileName(base)
	assert.True(t, ok)
	assert.Equal(t, "7", id)
}

func TestParseFileNameForeign(t *testing.T) {
	_, _, _, ok := ParseFileName("random-download.mp3")
	assert.False(t, ok)

	// id segment must be numeric
	_, _, _, ok = ParseFileName("name__artist__notanid.mp3")
	assert.False(t, ok)
}

func TestArtistLine(t *testing.T) {
	assert.Equal(t, "Alice, Bob", ArtistLine([]string{"Alice", "Bob"}))
	assert.Equal(t, "", ArtistLine(nil))
}
