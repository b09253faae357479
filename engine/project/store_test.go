package project

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/docsmith-ai/docsmith/engine/domain"
)

func TestPropsRoundTrip(t *testing.T) {
	p := domain.Project{
		ID:        "prj_1",
		Name:      "Next.js",
		Origins:   []string{"https://nextjs.org", "https://docs.nextjs.org"},
		Status:    domain.ProjectStatusTrained,
		IndexName: "docs_nextjs",
	}

	props := toProps(p)
	node := neo4j.Node{Props: map[string]any{
		"id":         props["id"],
		"name":       props["name"],
		"status":     props["status"],
		"index_name": props["index_name"],
		// The driver returns list properties as []any.
		"origins": []any{"https://nextjs.org", "https://docs.nextjs.org"},
	}}

	got := fromNode(node)
	if got.ID != p.ID || got.Name != p.Name || got.Status != p.Status || got.IndexName != p.IndexName {
		t.Errorf("fromNode = %+v, want %+v", got, p)
	}
	if len(got.Origins) != 2 || got.Origins[0] != p.Origins[0] {
		t.Errorf("origins = %v", got.Origins)
	}
}

func TestFromNode_MissingProps(t *testing.T) {
	got := fromNode(neo4j.Node{Props: map[string]any{}})
	if got.ID != "" || got.Origins != nil {
		t.Errorf("expected zero project, got %+v", got)
	}
}
