// Package parser turns raw ingested text into a structured document: a
// metadata header, a heading-based section forest (markdown only), a
// cleaned body for chunking, and detected inter-document links.
package parser

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/model"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// LinkType is the closed set of link shapes the parser recognizes.
type LinkType string

const (
	LinkWikilink           LinkType = "wikilink"
	LinkMarkdown           LinkType = "markdown_link"
	LinkCitation           LinkType = "citation"
	LinkReferenceDefinition LinkType = "reference_definition"
)

// Link is one detected reference from a document's body, carrying a
// short context window for downstream edge metadata.
type Link struct {
	Type    LinkType
	Target  string
	Label   string
	Context string
}

// DocumentMetadata is the header a parsed document carries regardless
// of source type: well-known fields plus a free-form custom bag.
type DocumentMetadata struct {
	Title       string
	Author      string
	Date        string
	Tags        []string
	Description string
	Custom      model.Metadata
}

// ParsedDocument is the output of Parse: metadata, section forest (only
// populated for markdown), cleaned text for chunking, the untouched raw
// text, and the links detected in the body.
type ParsedDocument struct {
	ID        uuid.UUID
	Source    string // filename/path, used to resolve local links
	Type      model.DocumentType
	Metadata  DocumentMetadata
	Sections  []*model.Section
	CleanText string
	RawText   string
	Links     []Link
}

var frontmatterPattern = regexp.MustCompile(`(?s)\A---\r?\n(.*?)\r?\n---\r?\n?`)

// Parse builds a ParsedDocument from raw source text according to
// docType. Malformed JSON falls back to plain text; malformed
// frontmatter is ignored rather than failing the parse.
func Parse(rawText string, docType model.DocumentType) (*ParsedDocument, error) {
	doc := &ParsedDocument{
		ID:       uuid.New(),
		Type:     docType,
		RawText:  rawText,
		Metadata: DocumentMetadata{Custom: model.Metadata{}},
	}

	switch docType {
	case model.DocumentTypeMarkdown:
		parseMarkdown(rawText, doc)
	case model.DocumentTypeJSON:
		if !parseJSON(rawText, doc) {
			parseText(rawText, doc)
			doc.Type = model.DocumentTypeText
		}
	case model.DocumentTypeJSONL:
		parseJSONL(rawText, doc)
	default:
		parseText(rawText, doc)
	}

	doc.Links = detectLinks(doc.CleanText)

	return doc, nil
}

func parseText(rawText string, doc *ParsedDocument) {
	doc.CleanText = strings.TrimSpace(rawText)
}

func parseMarkdown(rawText string, doc *ParsedDocument) {
	body := rawText

	if m := frontmatterPattern.FindStringSubmatch(rawText); m != nil {
		var fm map[string]interface{}
		if err := yaml.Unmarshal([]byte(m[1]), &fm); err == nil {
			applyFrontmatter(fm, doc)
			body = rawText[len(m[0]):]
		}
	}

	doc.Sections = buildSectionForest(body, doc.ID)
	doc.CleanText = cleanMarkup(body)
}

func applyFrontmatter(fm map[string]interface{}, doc *ParsedDocument) {
	for key, value := range fm {
		switch strings.ToLower(key) {
		case "title":
			doc.Metadata.Title, _ = value.(string)
		case "author":
			doc.Metadata.Author, _ = value.(string)
		case "date":
			doc.Metadata.Date = formatScalar(value)
		case "description":
			doc.Metadata.Description, _ = value.(string)
		case "tags":
			doc.Metadata.Tags = toStringSlice(value)
		default:
			doc.Metadata.Custom[key] = value
		}
	}
}

func formatScalar(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return strings.TrimSpace(strings.Trim(strings.ReplaceAll(yamlScalar(v), "\n", ""), "\""))
}

func yamlScalar(v interface{}) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}

func toStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// buildSectionForest walks the body line by line, opening a new Section
// at each heading and nesting it under the most recent heading of a
// strictly lower level, per the heading forest invariant.
func buildSectionForest(body string, documentID uuid.UUID) []*model.Section {
	var roots []*model.Section
	stack := []*model.Section{}

	pos := 0
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		lineStart := pos
		pos += len(line) + 1

		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			if len(stack) > 0 {
				stack[len(stack)-1].EndPos = pos
			}
			continue
		}

		level := len(m[1])
		section := &model.Section{
			ID:         uuid.New(),
			DocumentID: documentID,
			Heading:    strings.TrimSpace(m[2]),
			Level:      level,
			StartPos:   lineStart,
			EndPos:     pos,
		}

		for len(stack) > 0 && stack[len(stack)-1].Level >= level {
			stack = stack[:len(stack)-1]
		}

		if len(stack) == 0 {
			roots = append(roots, section)
		} else {
			parent := stack[len(stack)-1]
			section.ParentID = &parent.ID
			parent.Children = append(parent.Children, section)
		}

		stack = append(stack, section)
	}

	return roots
}

var (
	boldPattern    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern  = regexp.MustCompile(`\*([^*]+)\*`)
	codePattern    = regexp.MustCompile("`([^`]+)`")
	headingMarkers = regexp.MustCompile(`(?m)^#{1,6}\s+`)
)

// cleanMarkup strips the inline markdown markers the spec calls out
// while preserving the underlying text for chunking and embedding.
func cleanMarkup(text string) string {
	cleaned := headingMarkers.ReplaceAllString(text, "")
	cleaned = boldPattern.ReplaceAllString(cleaned, "$1")
	cleaned = italicPattern.ReplaceAllString(cleaned, "$1")
	cleaned = codePattern.ReplaceAllString(cleaned, "$1")
	return strings.TrimSpace(cleaned)
}

func parseJSON(rawText string, doc *ParsedDocument) bool {
	if !gjson.Valid(rawText) {
		return false
	}

	parsed := gjson.Parse(rawText)
	if !parsed.IsObject() {
		return false
	}

	for field, value := range parsed.Map() {
		doc.Metadata.Custom[field] = value.Value()
	}

	doc.Metadata.Title = firstNonEmpty(parsed.Get("title").String(), parsed.Get("name").String())
	doc.CleanText = strings.TrimSpace(firstNonEmpty(
		parsed.Get("text").String(),
		parsed.Get("content").String(),
		parsed.Get("summary").String(),
	))

	return true
}

func parseJSONL(rawText string, doc *ParsedDocument) {
	lines := strings.Split(strings.TrimSpace(rawText), "\n")
	var bodies []string
	var items []interface{}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			bodies = append(bodies, line)
			continue
		}
		parsed := gjson.Parse(line)
		items = append(items, parsed.Value())
		bodies = append(bodies, firstNonEmpty(
			parsed.Get("text").String(),
			parsed.Get("content").String(),
			parsed.Get("summary").String(),
			line,
		))
	}

	doc.Metadata.Custom["items"] = items
	doc.CleanText = strings.Join(bodies, "\n\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var (
	wikilinkPattern  = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	mdLinkPattern    = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	citationPattern  = regexp.MustCompile(`\[(@?[A-Za-z][A-Za-z0-9]*\s?\d{4}[a-z]?|\d+)\]`)
	refDefPattern    = regexp.MustCompile(`(?m)^\s*\[([^\]]+)\]:\s*(\S+)\s*$`)
)

const linkContextWindow = 50

func detectLinks(text string) []Link {
	var links []Link

	for _, m := range wikilinkPattern.FindAllStringSubmatchIndex(text, -1) {
		target := text[m[2]:m[3]]
		links = append(links, Link{Type: LinkWikilink, Target: target, Context: contextWindow(text, m[0], m[1])})
	}

	for _, m := range refDefPattern.FindAllStringSubmatchIndex(text, -1) {
		label := text[m[2]:m[3]]
		target := text[m[4]:m[5]]
		links = append(links, Link{Type: LinkReferenceDefinition, Label: label, Target: target, Context: contextWindow(text, m[0], m[1])})
	}

	refDefStarts := make(map[int]bool, len(links))
	for _, m := range refDefPattern.FindAllStringIndex(text, -1) {
		refDefStarts[m[0]] = true
	}

	for _, m := range mdLinkPattern.FindAllStringSubmatchIndex(text, -1) {
		if refDefStarts[m[0]] {
			continue
		}
		label := text[m[2]:m[3]]
		target := text[m[4]:m[5]]
		links = append(links, Link{Type: LinkMarkdown, Label: label, Target: target, Context: contextWindow(text, m[0], m[1])})
	}

	for _, m := range citationPattern.FindAllStringSubmatchIndex(text, -1) {
		key := text[m[2]:m[3]]
		if looksLikeMarkdownLinkLabel(text, m[1]) {
			continue
		}
		links = append(links, Link{Type: LinkCitation, Target: key, Context: contextWindow(text, m[0], m[1])})
	}

	return links
}

func looksLikeMarkdownLinkLabel(text string, end int) bool {
	return end < len(text) && text[end] == '('
}

func contextWindow(text string, start, end int) string {
	lo := start - linkContextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + linkContextWindow
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}
