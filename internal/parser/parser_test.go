package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.CanParse("/media/movie.srt"))
	assert.True(t, r.CanParse("/media/movie.ASS"))
	assert.True(t, r.CanParse("/media/movie.vtt"))
	assert.True(t, r.CanParse("/media/movie.nfo"))
	assert.False(t, r.CanParse("/media/movie.mkv"))

	assert.IsType(t, &SRTParser{}, r.ParserFor("a.srt"))
	assert.IsType(t, &VTTParser{}, r.ParserFor("a.vtt"))
	assert.Nil(t, r.ParserFor("a.txt"))
}

func TestRegistryUnsupportedFormat(t *testing.T) {
	r := NewRegistry()
	_, err := r.Parse("/media/movie.txt")
	require.Error(t, err)
	var unsupported *UnsupportedFormatError
	assert.ErrorAs(t, err, &unsupported)
}

func TestRegistryExtensions(t *testing.T) {
	r := NewRegistry()
	exts := r.Extensions()
	assert.Contains(t, exts, ".srt")
	assert.Contains(t, exts, ".ass")
	assert.Contains(t, exts, ".ssa")
	assert.Contains(t, exts, ".vtt")
	assert.Contains(t, exts, ".nfo")
}

func TestSRTParse(t *testing.T) {
	content := `1
00:00:01,000 --> 00:00:04,500
Hello there.

2
00:00:05,000 --> 00:00:08,000
<i>General Kenobi!</i>
You are a bold one.

`
	path := writeTempFile(t, "test.srt", content)
	entries, err := NewSRTParser().Parse(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(1000), entries[0].StartMs)
	assert.Equal(t, int64(4500), entries[0].EndMs)
	assert.Equal(t, "Hello there.", entries[0].Text)

	// Tags stripped, multi-line cues joined
	assert.Equal(t, "General Kenobi! You are a bold one.", entries[1].Text)
	assert.Equal(t, int64(5000), entries[1].StartMs)
}

func TestSRTParseNoTrailingBlankLine(t *testing.T) {
	content := "1\n00:00:01,000 --> 00:00:02,000\nLast line without newline"
	path := writeTempFile(t, "test.srt", content)
	entries, err := NewSRTParser().Parse(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Last line without newline", entries[0].Text)
}

func TestSRTParseMalformedBlocksSkipped(t *testing.T) {
	content := `1
not a timing line
garbage

2
00:00:01,000 --> 00:00:02,000
Valid cue
`
	path := writeTempFile(t, "test.srt", content)
	entries, err := NewSRTParser().Parse(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Valid cue", entries[0].Text)
}

func TestSRTParseEmptyFile(t *testing.T) {
	path := writeTempFile(t, "empty.srt", "")
	entries, err := NewSRTParser().Parse(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSRTParseBOM(t *testing.T) {
	content := "\uFEFF1\n00:00:01,000 --> 00:00:02,000\nWith BOM\n"
	path := writeTempFile(t, "bom.srt", content)
	entries, err := NewSRTParser().Parse(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSRTParseMissingFile(t *testing.T) {
	_, err := NewSRTParser().Parse("/nonexistent/file.srt")
	assert.Error(t, err)
}

func TestASSParse(t *testing.T) {
	content := `[Script Info]
Title: Test

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Dialogue: 0,0:00:01.50,0:00:04.00,Default,ALICE,0,0,0,,{\an8}Where were you\Nlast night?
Dialogue: 0,0:00:05.00,0:00:07.25,Default,,0,0,0,,I was at the docks, loading crates.
`
	path := writeTempFile(t, "test.ass", content)
	entries, err := NewASSParser().Parse(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(1500), entries[0].StartMs)
	assert.Equal(t, int64(4000), entries[0].EndMs)
	assert.Equal(t, "Where were you last night?", entries[0].Text)
	assert.Equal(t, "ALICE", entries[0].Speaker)

	// Commas inside the text field survive the split
	assert.Equal(t, "I was at the docks, loading crates.", entries[1].Text)
	assert.Equal(t, int64(7250), entries[1].EndMs)
}

func TestASSParseIgnoresOtherSections(t *testing.T) {
	content := `[V4+ Styles]
Format: Name, Fontname
Style: Default,Arial

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,Only this one
`
	path := writeTempFile(t, "test.ass", content)
	entries, err := NewASSParser().Parse(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Only this one", entries[0].Text)
}

func TestVTTParse(t *testing.T) {
	content := `WEBVTT

NOTE This is a comment
spanning two lines

1
00:00:01.000 --> 00:00:04.000 position:50%
<v Detective>Nobody saw the car leave.

00:01:05.500 --> 00:01:08.000
It was <c.yellow>already gone</c>.
`
	path := writeTempFile(t, "test.vtt", content)
	entries, err := NewVTTParser().Parse(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(1000), entries[0].StartMs)
	assert.Equal(t, int64(4000), entries[0].EndMs)
	assert.Equal(t, "Nobody saw the car leave.", entries[0].Text)
	assert.Equal(t, "Detective", entries[0].Speaker)

	assert.Equal(t, int64(65500), entries[1].StartMs)
	assert.Equal(t, "It was already gone.", entries[1].Text)
}

func TestVTTParseShortTimestamps(t *testing.T) {
	// Hours are optional in WebVTT
	content := "WEBVTT\n\n01:30.000 --> 01:35.000\nNo hour field\n"
	path := writeTempFile(t, "test.vtt", content)
	entries, err := NewVTTParser().Parse(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(90000), entries[0].StartMs)
}

func TestNFOParse(t *testing.T) {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<movie>
  <title>The Long Haul</title>
  <plot>A trucker uncovers a smuggling ring on the interstate.</plot>
  <tagline>Every mile has a price.</tagline>
  <genre>Thriller</genre>
  <genre>Crime</genre>
  <director>Pat Doe</director>
  <actor>
    <name>Sam Smith</name>
    <role>Frank</role>
  </actor>
</movie>
`
	path := writeTempFile(t, "movie.nfo", content)
	entries, err := NewNFOParser().Parse(path)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
		assert.Equal(t, int64(0), e.StartMs)
		assert.Equal(t, int64(0), e.EndMs)
		assert.False(t, e.Timed())
	}
	assert.Contains(t, texts, "The Long Haul")
	assert.Contains(t, texts, "A trucker uncovers a smuggling ring on the interstate.")
	assert.Contains(t, texts, "Thriller Crime")
	assert.Contains(t, texts, "Sam Smith Frank")
}

func TestNFOParseInvalidXML(t *testing.T) {
	path := writeTempFile(t, "bad.nfo", "https://www.themoviedb.org/movie/12345")
	_, err := NewNFOParser().Parse(path)
	assert.Error(t, err)
}
