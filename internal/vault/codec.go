package vault

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/postcards/internal/models"
	"github.com/starford/postcards/internal/postcards"
)

// Section headings that carry the optional note fields in the body.
const (
	headingCommentary = "Commentary"
	headingThoughts   = "Personal thoughts"
	headingQuestions  = "Questions"
)

const delim = "---"

// ErrNoFrontmatter is returned when a document does not start with a YAML block.
var ErrNoFrontmatter = errors.New("vault: document has no frontmatter")

type frontmatter struct {
	ID        string     `yaml:"id,omitempty"`
	Reference string     `yaml:"reference"`
	Tags      []string   `yaml:"tags"`
	CreatedAt *time.Time `yaml:"created_at,omitempty"`
	UpdatedAt *time.Time `yaml:"updated_at,omitempty"`
}

// Document is a decoded postcard file. ID is empty for hand-written files.
type Document struct {
	ID    string
	Input postcards.Input
}

// Encode renders p as Markdown: frontmatter, verse text, then one section per
// non-nil note field.
func Encode(p models.Postcard) ([]byte, error) {
	created, updated := p.CreatedAt, p.UpdatedAt
	fm := frontmatter{
		ID:        p.ID,
		Reference: p.Reference,
		Tags:      p.Tags,
		CreatedAt: &created,
		UpdatedAt: &updated,
	}
	if fm.Tags == nil {
		fm.Tags = []string{}
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("vault: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("vault: encode frontmatter: %w", err)
	}
	buf.WriteString(delim + "\n\n")
	buf.WriteString(escapeBody(p.Text))
	buf.WriteString("\n")

	writeSection(&buf, headingCommentary, p.Commentary)
	writeSection(&buf, headingThoughts, p.PersonalThoughts)
	writeSection(&buf, headingQuestions, p.Questions)
	return buf.Bytes(), nil
}

// writeSection emits "\n## heading\n\n" followed by the value and one newline.
// The value is written as is so Decode returns it byte for byte.
func writeSection(buf *bytes.Buffer, heading string, value *string) {
	if value == nil {
		return
	}
	buf.WriteString("\n## " + heading + "\n\n")
	buf.WriteString(escapeBody(*value))
	buf.WriteString("\n")
}

// Decode parses a document written by Encode or by hand. Validation of the
// resulting input is left to the postcard service.
func Decode(data []byte) (*Document, error) {
	yamlBlock, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	var fm frontmatter
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, fmt.Errorf("vault: parse frontmatter: %w", err)
	}

	text, sections := splitSections(body)
	tags := fm.Tags
	if tags == nil {
		tags = []string{}
	}
	return &Document{
		ID: strings.TrimSpace(fm.ID),
		Input: postcards.Input{
			Reference:        fm.Reference,
			Text:             text,
			Tags:             tags,
			Commentary:       sections[headingCommentary],
			PersonalThoughts: sections[headingThoughts],
			Questions:        sections[headingQuestions],
		},
	}, nil
}

// splitFrontmatter separates the YAML block between the leading --- delimiters
// from the Markdown body.
func splitFrontmatter(data []byte) ([]byte, string, error) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, "", ErrNoFrontmatter
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, "", ErrNoFrontmatter
	}
	yamlBlock := rest[:idx]
	body := string(rest[idx+1+len(delim):])
	return yamlBlock, body, nil
}

var knownHeadings = map[string]string{
	strings.ToLower(headingCommentary): headingCommentary,
	strings.ToLower(headingThoughts):   headingThoughts,
	strings.ToLower(headingQuestions):  headingQuestions,
}

// sectionName reports which known section a trimmed line opens, if any.
func sectionName(trimmed string) (string, bool) {
	if !strings.HasPrefix(trimmed, "## ") {
		return "", false
	}
	name, ok := knownHeadings[strings.ToLower(strings.TrimSpace(trimmed[3:]))]
	return name, ok
}

// headingCore strips leading blanks and backslashes; a line whose core is a
// section heading is escaped with one extra leading backslash.
func headingCore(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, " \t\r\\"))
}

func escapeBody(value string) string {
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		if _, ok := sectionName(headingCore(line)); ok {
			lines[i] = "\\" + line
		}
	}
	return strings.Join(lines, "\n")
}

func unescapeLine(line string) string {
	if strings.HasPrefix(line, "\\") {
		if _, ok := sectionName(headingCore(line[1:])); ok {
			return line[1:]
		}
	}
	return line
}

// splitSections returns the text before the first known heading and the
// content of each known heading that appears. Only the framing newlines that
// Encode writes around each part are removed.
func splitSections(body string) (string, map[string]*string) {
	var text []string
	parts := map[string]*[]string{}
	current := &text
	for _, line := range strings.Split(body, "\n") {
		if name, ok := sectionName(strings.TrimSpace(line)); ok {
			lines := []string{}
			parts[name] = &lines
			current = &lines
			continue
		}
		*current = append(*current, unescapeLine(line))
	}

	sections := make(map[string]*string, len(parts))
	for name, lines := range parts {
		v := unframe(strings.Join(*lines, "\n"), 1)
		sections[name] = &v
	}
	return unframe(strings.Join(text, "\n"), 2), sections
}

// unframe drops up to lead leading newlines and one trailing newline.
func unframe(s string, lead int) string {
	for i := 0; i < lead && strings.HasPrefix(s, "\n"); i++ {
		s = s[1:]
	}
	return strings.TrimSuffix(s, "\n")
}
