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

// assTimestampPattern matches "H:MM:SS.cc" (centiseconds).
var assTimestampPattern = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})\.(\d{2})$`)

// assOverridePattern strips style override blocks like {\an8\i1}.
var assOverridePattern = regexp.MustCompile(`\{[^}]*\}`)

// ASSParser parses Advanced SubStation Alpha (.ass/.ssa) subtitle files.
type ASSParser struct{}

func NewASSParser() *ASSParser {
	return &ASSParser{}
}

func (p *ASSParser) Extensions() []string {
	return []string{".ass", ".ssa"}
}

func (p *ASSParser) CanParse(path string) bool {
	return hasExtension(path, p.Extensions())
}

// Parse reads Dialogue lines from the [Events] section. The Format line
// defines field order; Start, End, Name, and Text positions are taken
// from it, falling back to the standard v4+ layout.
func (p *ASSParser) Parse(path string) ([]types.ParsedEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries := make([]types.ParsedEntry, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	inEvents := false
	startIdx, endIdx, nameIdx, textIdx := 1, 2, 4, 9
	fieldCount := 10

	for scanner.Scan() {
		line := strings.TrimSpace(stripBOM(scanner.Text()))
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			inEvents = strings.EqualFold(line, "[Events]")
			continue
		}
		if !inEvents {
			continue
		}

		if strings.HasPrefix(line, "Format:") {
			fields := strings.Split(strings.TrimPrefix(line, "Format:"), ",")
			fieldCount = len(fields)
			for i, field := range fields {
				switch strings.TrimSpace(field) {
				case "Start":
					startIdx = i
				case "End":
					endIdx = i
				case "Name":
					nameIdx = i
				case "Text":
					textIdx = i
				}
			}
			continue
		}

		if !strings.HasPrefix(line, "Dialogue:") {
			continue
		}

		// Text is the last field and may itself contain commas
		fields := strings.SplitN(strings.TrimPrefix(line, "Dialogue:"), ",", fieldCount)
		if len(fields) <= textIdx {
			continue
		}

		startMs, ok1 := assTimestampMs(strings.TrimSpace(fields[startIdx]))
		endMs, ok2 := assTimestampMs(strings.TrimSpace(fields[endIdx]))
		if !ok1 || !ok2 {
			continue
		}

		text := cleanASSText(fields[textIdx])
		if text == "" {
			continue
		}

		entry := types.ParsedEntry{
			StartMs:    startMs,
			EndMs:      endMs,
			Text:       text,
			Confidence: 1.0,
		}
		if nameIdx < len(fields) {
			entry.Speaker = strings.TrimSpace(fields[nameIdx])
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}
	return entries, nil
}

func assTimestampMs(s string) (int64, bool) {
	m := assTimestampPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	hours, _ := strconv.ParseInt(m[1], 10, 64)
	minutes, _ := strconv.ParseInt(m[2], 10, 64)
	seconds, _ := strconv.ParseInt(m[3], 10, 64)
	centis, _ := strconv.ParseInt(m[4], 10, 64)
	return ((hours*60+minutes)*60+seconds)*1000 + centis*10, true
}

// cleanASSText strips override blocks, converts \N and \n line breaks
// to spaces, removes invisible \h hard spaces, and collapses whitespace.
func cleanASSText(text string) string {
	text = assOverridePattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, `\N`, " ")
	text = strings.ReplaceAll(text, `\n`, " ")
	text = strings.ReplaceAll(text, `\h`, " ")
	return strings.Join(strings.Fields(text), " ")
}
