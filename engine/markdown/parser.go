// Package markdown parses documentation files (.md/.mdx) into titled,
// sectioned documents sized for embedding. Sections are split on heading
// boundaries and, past a soft length target, on paragraph boundaries.
package markdown

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/docsmith-ai/docsmith/engine/domain"
)

// softSectionLimit is the soft target for section content length. Once the
// content exceeds it, the next paragraph boundary starts a new section.
const softSectionLimit = 200

var (
	jsxCommentRE = regexp.MustCompile(`\{/\*[\s\S]*?\*/\}`)
	importRE     = regexp.MustCompile(`^import\s+(?:[\w*,{}\s]+\s+from\s+)?['"].+?['"];?\s*$`)
)

// FrontMatter is the YAML header optionally preceding the markdown body.
type FrontMatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// splitFrontMatter extracts the YAML front-matter block delimited by "---"
// lines and returns it with the remaining body. Content without a leading
// "---" is returned unchanged.
func splitFrontMatter(content string) (FrontMatter, string, error) {
	var meta FrontMatter

	trimmed := strings.TrimLeft(content, "\n\r \t")
	if !strings.HasPrefix(trimmed, "---") {
		return meta, content, nil
	}

	rest := trimmed[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return meta, "", fmt.Errorf("unterminated front matter block")
	}

	block := rest[:end]
	body := rest[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return meta, "", fmt.Errorf("decode front matter: %w", err)
	}
	return meta, strings.TrimSpace(body), nil
}

// state tracks the single left-to-right parsing pass.
type state struct {
	inCodeBlock bool
	depthMap    map[int]string
	sections    []domain.Section
}

func newState(title string) *state {
	s := &state{
		depthMap: make(map[int]string),
		sections: []domain.Section{{}},
	}
	if title != "" {
		s.depthMap[1] = title
	}
	return s
}

// computeTitle records the heading in the lineage map and returns the
// hierarchical section title: ancestor headings joined by ": ", shallowest
// first, ending with the heading itself.
func (s *state) computeTitle(h heading) string {
	s.depthMap[h.depth] = h.content

	depths := make([]int, 0, len(s.depthMap))
	for d := range s.depthMap {
		if d < h.depth {
			depths = append(depths, d)
		}
	}
	sort.Ints(depths)

	parts := make([]string, 0, len(depths)+1)
	for _, d := range depths {
		parts = append(parts, s.depthMap[d])
	}
	parts = append(parts, h.content)
	return strings.Join(parts, ": ")
}

func (s *state) current() *domain.Section {
	return &s.sections[len(s.sections)-1]
}

func (s *state) startSection(title string) {
	s.sections = append(s.sections, domain.Section{Title: title})
}

// pushLine appends a line to the current section, starting a fresh section
// with the same title when the content already ends at a paragraph boundary
// and exceeds the soft length target. Fenced code is never split.
func (s *state) pushLine(line string) {
	cur := s.current()
	if !s.inCodeBlock && strings.HasSuffix(cur.Content, "\n") && len(cur.Content) > softSectionLimit {
		s.startSection(cur.Title)
		cur = s.current()
	}

	if cur.Content == "" {
		cur.Content = strings.TrimSpace(line)
		return
	}
	cur.Content += "\n" + strings.TrimSpace(line)
}

// extractSections runs the line pass over the markdown body. A front-matter
// title seeds depth 1 of the lineage and is returned as the document title;
// without one, the returned title is the last H1 seen (empty if none).
func extractSections(content, docTitle string) ([]domain.Section, string) {
	s := newState(docTitle)

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "```") {
			s.inCodeBlock = !s.inCodeBlock
		}

		if !s.inCodeBlock {
			if importRE.MatchString(line) {
				continue
			}
			line = jsxCommentRE.ReplaceAllString(line, "")

			if h, ok := parseHeading(line); ok {
				s.startSection(s.computeTitle(h))
				continue
			}
		}

		s.pushLine(line)
	}

	if docTitle == "" {
		docTitle = s.depthMap[1]
	}

	kept := s.sections[:0]
	for _, sec := range s.sections {
		if strings.TrimSpace(sec.Content) != "" {
			kept = append(kept, sec)
		}
	}
	return kept, docTitle
}

// Parse parses markdown content into a Document. The path is the canonical
// slash-prefixed, extension-stripped document path; the file stem is the
// title fallback when neither front matter nor an H1 provides one.
func Parse(path string, content []byte) (domain.Document, error) {
	meta, body, err := splitFrontMatter(string(content))
	if err != nil {
		return domain.Document{}, fmt.Errorf("markdown: parse %s: %w", path, err)
	}

	sections, title := extractSections(body, meta.Title)
	if title == "" {
		title = humanize(strings.TrimPrefix(filepath.Base(path), "/"))
	}

	return domain.Document{
		Path:        path,
		Title:       title,
		Description: meta.Description,
		Sections:    sections,
	}, nil
}

// ParseFile reads and parses one file under base. The document path is the
// file's path relative to base, slash-prefixed, with the extension stripped.
func ParseFile(file, base string) (domain.Document, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return domain.Document{}, fmt.Errorf("markdown: read %s: %w", file, err)
	}

	rel, err := filepath.Rel(base, file)
	if err != nil {
		return domain.Document{}, fmt.Errorf("markdown: relativize %s: %w", file, err)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))

	return Parse("/"+filepath.ToSlash(rel), content)
}

// humanize turns a file stem like "getting-started" into "Getting Started".
func humanize(stem string) string {
	words := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
