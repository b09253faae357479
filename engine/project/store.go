// Package project is the registry of documentation projects: which origins
// a project serves, its status, and the vector collection backing it.
package project

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/docsmith-ai/docsmith/engine/domain"
	"github.com/docsmith-ai/docsmith/pkg/fn"
)

// Store is a Neo4j-backed project registry.
type Store struct {
	driver neo4j.DriverWithContext
}

// New creates a Store on an existing driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

func (s *Store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{})
}

func toProps(p domain.Project) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"origins":    p.Origins,
		"status":     p.Status,
		"index_name": p.IndexName,
	}
}

func fromNode(node neo4j.Node) domain.Project {
	p := domain.Project{
		ID:        stringProp(node, "id"),
		Name:      stringProp(node, "name"),
		Status:    stringProp(node, "status"),
		IndexName: stringProp(node, "index_name"),
	}
	if raw, ok := node.Props["origins"].([]any); ok {
		for _, o := range raw {
			if s, ok := o.(string); ok {
				p.Origins = append(p.Origins, s)
			}
		}
	}
	return p
}

func stringProp(node neo4j.Node, key string) string {
	if v, ok := node.Props[key].(string); ok {
		return v
	}
	return ""
}

// Save creates or updates a project by ID.
func (s *Store) Save(ctx context.Context, p domain.Project) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		"MERGE (p:Project {id: $id}) SET p += $props",
		map[string]any{"id": p.ID, "props": toProps(p)},
	)
	if err != nil {
		return fmt.Errorf("project: save %s: %w", p.ID, err)
	}
	return nil
}

// Get returns the project with the given ID.
func (s *Store) Get(ctx context.Context, id string) (domain.Project, error) {
	return s.findOne(ctx,
		"MATCH (p:Project {id: $id}) RETURN p",
		map[string]any{"id": id},
	)
}

// FindByOrigin returns the project serving the given origin.
func (s *Store) FindByOrigin(ctx context.Context, origin string) (domain.Project, error) {
	return s.findOne(ctx,
		"MATCH (p:Project) WHERE $origin IN p.origins RETURN p",
		map[string]any{"origin": origin},
	)
}

// FindByName fuzzily resolves a project from a free-form name. Generic words
// like "docs" and "documentation" are ignored; the remaining tokens match
// against the name, the index name, and the origins.
func (s *Store) FindByName(ctx context.Context, name string) (domain.Project, error) {
	tokens := fn.Filter(strings.Fields(strings.ToLower(name)), func(tok string) bool {
		return tok != "docs" && tok != "documentation"
	})
	if len(tokens) == 0 {
		return domain.Project{}, domain.NotFound("project not found")
	}

	return s.findOne(ctx,
		`MATCH (p:Project)
		 WHERE any(tok IN $tokens WHERE
		   toLower(p.name) CONTAINS tok
		   OR toLower(p.index_name) CONTAINS tok
		   OR any(o IN p.origins WHERE toLower(o) CONTAINS tok))
		 RETURN p LIMIT 1`,
		map[string]any{"tokens": tokens},
	)
}

// List returns all projects.
func (s *Store) List(ctx context.Context) ([]domain.Project, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, "MATCH (p:Project) RETURN p ORDER BY p.name", nil)
	if err != nil {
		return nil, fmt.Errorf("project: list: %w", err)
	}

	var projects []domain.Project
	for result.Next(ctx) {
		if node, ok := nodeFromRecord(result.Record()); ok {
			projects = append(projects, fromNode(node))
		}
	}
	return projects, result.Err()
}

// Delete removes a project by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		"MATCH (p:Project {id: $id}) DELETE p",
		map[string]any{"id": id},
	)
	if err != nil {
		return fmt.Errorf("project: delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) findOne(ctx context.Context, cypher string, params map[string]any) (domain.Project, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return domain.Project{}, fmt.Errorf("project: query: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return domain.Project{}, fmt.Errorf("project: query: %w", err)
		}
		return domain.Project{}, domain.NotFound("project not found")
	}
	node, ok := nodeFromRecord(result.Record())
	if !ok {
		return domain.Project{}, fmt.Errorf("project: unexpected record shape")
	}
	return fromNode(node), nil
}

func nodeFromRecord(record *neo4j.Record) (neo4j.Node, bool) {
	if len(record.Values) == 0 {
		return neo4j.Node{}, false
	}
	node, ok := record.Values[0].(neo4j.Node)
	return node, ok
}
