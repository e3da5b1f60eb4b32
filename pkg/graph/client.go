// Package graph projects the committed registry into a Memgraph/Neo4j topology over Bolt
package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Client wraps the Neo4j driver for Memgraph compatibility
type Client struct {
	driver neo4j.DriverWithContext
	logger ectologger.Logger
}

// Config holds graph database configuration
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

// NewClient creates a new graph database client
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	uri := fmt.Sprintf("bolt://%s:%d", cfg.Host, cfg.Port)

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}

	return &Client{
		driver: driver,
		logger: logger,
	}, nil
}

// Close closes the driver connection
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// VerifyConnectivity checks if the database is reachable
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Exec runs statements in order inside one write transaction
func (c *Client) Exec(ctx context.Context, statements ...Statement) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Exec")
	defer span.End()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range statements {
			result, err := tx.Run(ctx, stmt.Cypher, stmt.Params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

var _ Executor = (*Client)(nil)
