package domain

import (
	"strings"
	"testing"
)

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{"valid", "how do I configure the widget?", false},
		{"empty", "", true},
		{"whitespace only", "   \n\t", true},
		{"too long", strings.Repeat("a", 2001), true},
		{"at limit", strings.Repeat("a", 2000), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuery(tt.query)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateQuery(%q) err = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSlug(t *testing.T) {
	tests := []struct {
		slug    string
		wantErr bool
	}{
		{"nextjs", false},
		{"hop-docs", false},
		{"v2", false},
		{"", true},
		{"Has-Upper", true},
		{"under_score", true},
		{"spaced out", true},
		{strings.Repeat("a", 65), true},
	}
	for _, tt := range tests {
		err := ValidateSlug(tt.slug)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSlug(%q) err = %v, wantErr %v", tt.slug, err, tt.wantErr)
		}
	}
}

func TestValidateDocument(t *testing.T) {
	valid := Document{
		Path:  "/guides/install",
		Title: "Install",
		Sections: []Section{
			{Title: "Install", Content: "Run the installer."},
		},
	}
	if err := ValidateDocument(valid); err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}

	noSlash := valid
	noSlash.Path = "guides/install"
	if err := ValidateDocument(noSlash); err == nil {
		t.Error("expected error for path without leading slash")
	}

	noTitle := valid
	noTitle.Title = ""
	if err := ValidateDocument(noTitle); err == nil {
		t.Error("expected error for missing title")
	}

	emptySection := valid
	emptySection.Sections = []Section{{Content: "  \n "}}
	if err := ValidateDocument(emptySection); err == nil {
		t.Error("expected error for blank section content")
	}
}

func TestErrStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("project missing"), 404},
		{Unauthorized("signature expired"), 401},
		{ClientErr("bad body"), 400},
		{ServerErr("qdrant down", nil), 500},
	}
	for _, tt := range tests {
		if got := ErrStatus(tt.err); got != tt.want {
			t.Errorf("ErrStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
