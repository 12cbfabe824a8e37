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

// vttTimingPattern matches "HH:MM:SS.mmm --> HH:MM:SS.mmm" where hours
// are optional, with optional cue settings after the end time.
var vttTimingPattern = regexp.MustCompile(
	`^(?:(\d{1,2}):)?(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(?:(\d{1,2}):)?(\d{2}):(\d{2})\.(\d{3})`)

// vttVoicePattern captures the speaker from <v Name> voice spans.
var vttVoicePattern = regexp.MustCompile(`<v(?:\.[^ >]*)?\s+([^>]+)>`)

// vttTagPattern strips cue markup like <c.yellow>, <i>, and timestamps.
var vttTagPattern = regexp.MustCompile(`<[^>]*>`)

// VTTParser parses WebVTT subtitle files.
type VTTParser struct{}

func NewVTTParser() *VTTParser {
	return &VTTParser{}
}

func (p *VTTParser) Extensions() []string {
	return []string{".vtt"}
}

func (p *VTTParser) CanParse(path string) bool {
	return hasExtension(path, p.Extensions())
}

// Parse reads a WebVTT file. NOTE, STYLE, and REGION blocks are
// skipped; cue identifiers before timing lines are ignored.
func (p *VTTParser) Parse(path string) ([]types.ParsedEntry, error) {
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
	skipBlock := false

	flush := func() {
		if current != nil && len(textLines) > 0 {
			raw := strings.Join(textLines, " ")
			if m := vttVoicePattern.FindStringSubmatch(raw); m != nil {
				current.Speaker = strings.TrimSpace(m[1])
			}
			current.Text = cleanVTTText(raw)
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
			skipBlock = false
			continue
		}
		if skipBlock {
			continue
		}

		if strings.HasPrefix(line, "WEBVTT") {
			continue
		}
		if strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION") {
			skipBlock = true
			continue
		}

		if m := vttTimingPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = &types.ParsedEntry{
				StartMs:    vttTimestampMs(m[1], m[2], m[3], m[4]),
				EndMs:      vttTimestampMs(m[5], m[6], m[7], m[8]),
				Confidence: 1.0,
			}
			continue
		}

		if current != nil {
			textLines = append(textLines, line)
		}
		// Lines before the first timing line are cue identifiers
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}
	return entries, nil
}

func vttTimestampMs(h, m, s, ms string) int64 {
	var hours int64
	if h != "" {
		hours, _ = strconv.ParseInt(h, 10, 64)
	}
	minutes, _ := strconv.ParseInt(m, 10, 64)
	seconds, _ := strconv.ParseInt(s, 10, 64)
	millis, _ := strconv.ParseInt(ms, 10, 64)
	return ((hours*60+minutes)*60+seconds)*1000 + millis
}

func cleanVTTText(text string) string {
	text = vttTagPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	return strings.Join(strings.Fields(text), " ")
}
