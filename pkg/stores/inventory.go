package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/deckhand/pkg/host"
)

// UpsertNode inserts or replaces an inventory node, keyed by name.
func (s *SQLiteStore) UpsertNode(ctx context.Context, node host.Node) error {
	if node.Name == "" {
		return errors.New("inventory node name is required")
	}
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to encode node %s: %w", node.Name, err)
	}

	query := `
		INSERT INTO inventory_nodes (name, environment, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			environment = excluded.environment,
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, node.Name, node.Environment, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", node.Name, err)
	}
	return nil
}

// ImportNodes upserts every node in one transaction.
func (s *SQLiteStore) ImportNodes(ctx context.Context, nodes []host.Node) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO inventory_nodes (name, environment, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			environment = excluded.environment,
			data = excluded.data,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare import: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, n := range nodes {
		if n.Name == "" {
			return errors.New("inventory node name is required")
		}
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("failed to encode node %s: %w", n.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, n.Name, n.Environment, string(data), now); err != nil {
			return fmt.Errorf("failed to import node %s: %w", n.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

// DeleteNode removes an inventory node.
func (s *SQLiteStore) DeleteNode(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM inventory_nodes WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("node %s: %w", name, ErrNotFound)
	}
	return nil
}

// ListNodes returns every inventory node ordered by name.
func (s *SQLiteStore) ListNodes(ctx context.Context) ([]host.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, data FROM inventory_nodes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []host.Node{}
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		var n host.Node
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return nil, fmt.Errorf("failed to decode node %s: %w", name, err)
		}
		nodes = append(nodes, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return nodes, nil
}

// Search implements host.Inventory over the stored nodes.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]host.Node, error) {
	nodes, err := s.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	return host.Filter(nodes, query, limit)
}
