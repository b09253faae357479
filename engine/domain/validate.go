package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxQueryLen = 2000
	maxSlugLen  = 64
)

// ValidateQuery checks a user question before it reaches the answer pipeline.
func ValidateQuery(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return ClientErr("query must not be empty")
	}
	if utf8.RuneCountInString(q) > maxQueryLen {
		return ClientErr(fmt.Sprintf("query exceeds %d characters", maxQueryLen))
	}
	return nil
}

// ValidateSlug checks a project slug used as a collection-name component.
// Slugs are lowercase alphanumerics with dashes, as in "docs_<slug>".
func ValidateSlug(slug string) error {
	if slug == "" {
		return ClientErr("slug must not be empty")
	}
	if len(slug) > maxSlugLen {
		return ClientErr(fmt.Sprintf("slug exceeds %d characters", maxSlugLen))
	}
	for _, r := range slug {
		if !unicode.IsLower(r) && !unicode.IsDigit(r) && r != '-' {
			return ClientErr(fmt.Sprintf("slug contains invalid character %q", r))
		}
	}
	return nil
}

// ValidateDocument checks the parser post-conditions before a document is
// allowed into the ingestion pipeline.
func ValidateDocument(doc Document) error {
	if doc.Path == "" || !strings.HasPrefix(doc.Path, "/") {
		return ClientErr(fmt.Sprintf("document path %q must be slash-prefixed", doc.Path))
	}
	if doc.Title == "" {
		return ClientErr(fmt.Sprintf("document %s has no title", doc.Path))
	}
	for i, s := range doc.Sections {
		if strings.TrimSpace(s.Content) == "" {
			return ClientErr(fmt.Sprintf("document %s section %d has empty content", doc.Path, i))
		}
	}
	return nil
}

// CollectionName returns the vector collection name for a project slug.
func CollectionName(slug string) string {
	return "docs_" + slug
}
