package parser

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/medialib/scenesearch/pkg/types"
)

// NFOParser extracts searchable text from Kodi-style NFO metadata files.
// NFO entries carry no timing; all entries are emitted with zero
// start/end times.
type NFOParser struct{}

func NewNFOParser() *NFOParser {
	return &NFOParser{}
}

func (p *NFOParser) Extensions() []string {
	return []string{".nfo"}
}

func (p *NFOParser) CanParse(path string) bool {
	return hasExtension(path, p.Extensions())
}

// nfoDocument covers the fields shared by movie, episodedetails, and
// musicvideo root elements.
type nfoDocument struct {
	Title    string   `xml:"title"`
	Plot     string   `xml:"plot"`
	Outline  string   `xml:"outline"`
	Tagline  string   `xml:"tagline"`
	Genres   []string `xml:"genre"`
	Director string   `xml:"director"`
	Studio   string   `xml:"studio"`
	Actors   []struct {
		Name string `xml:"name"`
		Role string `xml:"role"`
	} `xml:"actor"`
}

// Parse decodes the NFO document and emits one untimed entry per
// non-empty text field. Some NFO files carry a trailing URL after the
// XML; decoding stops at the document end so that's tolerated.
func (p *NFOParser) Parse(path string) ([]types.ParsedEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer func() { _ = f.Close() }()

	decoder := xml.NewDecoder(f)
	decoder.Strict = false

	var doc nfoDocument
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file: %w", err)
	}

	entries := make([]types.ParsedEntry, 0, 6)
	add := func(text string) {
		text = strings.Join(strings.Fields(text), " ")
		if text != "" {
			entries = append(entries, types.ParsedEntry{Text: text, Confidence: 1.0})
		}
	}

	add(doc.Title)
	add(doc.Tagline)
	add(doc.Outline)
	add(doc.Plot)
	if len(doc.Genres) > 0 {
		add(strings.Join(doc.Genres, " "))
	}
	add(doc.Director)
	add(doc.Studio)

	names := make([]string, 0, len(doc.Actors))
	for _, actor := range doc.Actors {
		if actor.Name != "" {
			names = append(names, actor.Name)
		}
		if actor.Role != "" {
			names = append(names, actor.Role)
		}
	}
	if len(names) > 0 {
		add(strings.Join(names, " "))
	}

	return entries, nil
}
