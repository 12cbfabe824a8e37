package parser

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/medialib/scenesearch/pkg/types"
)

// srtTimingPattern matches "HH:MM:SS,mmm --> HH:MM:SS,mmm" with optional
// position hints after the end time.
var srtTimingPattern = regexp.MustCompile(
	`^(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})`)

// srtTagPattern strips basic HTML-style formatting tags.
var srtTagPattern = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

// SRTParser parses SubRip subtitle files.
type SRTParser struct{}

func NewSRTParser() *SRTParser {
	return &SRTParser{}
}

func (p *SRTParser) Extensions() []string {
	return []string{".srt"}
}

func (p *SRTParser) CanParse(path string) bool {
	return hasExtension(path, p.Extensions())
}

// Parse reads an SRT file. Cue blocks are separated by blank lines:
// a numeric index line, a timing line, then one or more text lines.
// Malformed blocks are skipped rather than failing the whole file.
func (p *SRTParser) Parse(path string) ([]types.ParsedEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries := make([]types.ParsedEntry, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current *types.ParsedEntry
	var textLines []string

	flush := func() {
		if current != nil && len(textLines) > 0 {
			current.Text = cleanSubtitleText(strings.Join(textLines, " "))
			if current.Text != "" {
				entries = append(entries, *current)
			}
		}
		current = nil
		textLines = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(stripBOM(scanner.Text()))

		if line == "" {
			flush()
			continue
		}

		if m := srtTimingPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = &types.ParsedEntry{
				StartMs:    srtTimestampMs(m[1], m[2], m[3], m[4]),
				EndMs:      srtTimestampMs(m[5], m[6], m[7], m[8]),
				Confidence: 1.0,
			}
			continue
		}

		// Index lines before a timing line are ignored
		if current == nil {
			if _, err := strconv.Atoi(line); err == nil {
				continue
			}
			continue
		}

		textLines = append(textLines, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}
	return entries, nil
}

func srtTimestampMs(h, m, s, ms string) int64 {
	hours, _ := strconv.ParseInt(h, 10, 64)
	minutes, _ := strconv.ParseInt(m, 10, 64)
	seconds, _ := strconv.ParseInt(s, 10, 64)
	millis, _ := strconv.ParseInt(ms, 10, 64)
	return ((hours*60+minutes)*60+seconds)*1000 + millis
}

// cleanSubtitleText removes formatting tags and collapses whitespace.
func cleanSubtitleText(text string) string {
	text = srtTagPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// stripBOM removes a UTF-8 byte order mark from the start of a line.
func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
