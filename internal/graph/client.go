// Package graph publishes pipeline entities and relationships to the
// external graph store as idempotent upserts.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/atlasengine/atlas-go/internal/errors"
)

// Upserter is the graph collaborator interface. Either call may fail for a
// single entity or edge without aborting the batch.
type Upserter interface {
	UpsertEntity(ctx context.Context, entityType, id string, properties map[string]any) error
	UpsertRelationship(ctx context.Context, relType, fromID, fromType, toID, toType string, properties map[string]any) error
	Health(ctx context.Context) bool
}

// Client implements Upserter against a Neo4j-compatible store.
type Client struct {
	driver  neo4j.DriverWithContext
	timeout time.Duration
}

// NewClient connects to the graph store at uri with basic auth.
func NewClient(uri, username, password string, timeout time.Duration) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, errors.New(err).
			Component("graph").
			Category(errors.CategoryNetwork).
			Context("uri", uri).
			Build()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{driver: driver, timeout: timeout}, nil
}

// Close releases the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Health verifies connectivity to the graph store.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.driver.VerifyConnectivity(ctx) == nil
}

// UpsertEntity MERGEs a node of the given type by id and sets its properties.
func (c *Client) UpsertEntity(ctx context.Context, entityType, id string, properties map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	// Entity types come from a fixed internal enumeration, never user input,
	// so interpolating the label is safe.
	query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", entityType)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{"id": id, "props": properties})
	})
	if err != nil {
		return errors.New(err).
			Component("graph").
			Category(errors.CategoryGraph).
			Context("entity_type", entityType).
			Context("id", id).
			Build()
	}
	return nil
}

// UpsertRelationship MERGEs an edge between two nodes, creating placeholder
// endpoints if publication order ever leaves one missing.
func (c *Client) UpsertRelationship(ctx context.Context, relType, fromID, fromType, toID, toType string, properties map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(
		"MERGE (a:%s {id: $fromID}) MERGE (b:%s {id: $toID}) MERGE (a)-[r:%s]->(b) SET r += $props",
		fromType, toType, relType)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"fromID": fromID,
			"toID":   toID,
			"props":  properties,
		})
	})
	if err != nil {
		return errors.New(err).
			Component("graph").
			Category(errors.CategoryGraph).
			Context("rel_type", relType).
			Context("from", fromID).
			Context("to", toID).
			Build()
	}
	return nil
}
