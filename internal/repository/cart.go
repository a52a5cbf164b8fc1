// Package repository persists products on the primary database and cart
// lines and orders on the shard that owns the session.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"tea-storefront/internal/entity"
	"tea-storefront/internal/sharding"
)

type CartRepository struct {
	dbShards []*sql.DB
	router   *sharding.ShardRouter
}

func NewCartRepository(dbShards []*sql.DB, router *sharding.ShardRouter) *CartRepository {
	return &CartRepository{dbShards, router}
}

func (r *CartRepository) shard(sessionID string) *sql.DB {
	return r.dbShards[r.router.GetShard(sessionID)]
}

func (r *CartRepository) GetLines(ctx context.Context, sessionID string) ([]entity.CartLineItem, error) {
	query := `SELECT id, product_id, quantity, unit, unit_price, total_price FROM cart_lines WHERE session_id = ? ORDER BY id`
	rows, err := r.shard(sessionID).QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []entity.CartLineItem{}
	for rows.Next() {
		var (
			line entity.CartLineItem
			id   int64
			unit string
		)
		if err := rows.Scan(&id, &line.ProductID, &line.Quantity, &unit, &line.UnitPriceAtTime, &line.TotalPriceAtTime); err != nil {
			return nil, err
		}
		line.ServerID = strconv.FormatInt(id, 10)
		line.Unit = entity.Unit(unit)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

const saveLineQuery = `
	INSERT INTO cart_lines (session_id, product_id, unit, quantity, unit_price, total_price)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id), quantity = VALUES(quantity), unit_price = VALUES(unit_price), total_price = VALUES(total_price)`

// SaveLine inserts the line or overwrites the existing line with the same
// (product, unit) and returns it with its server id.
func (r *CartRepository) SaveLine(ctx context.Context, sessionID string, line entity.CartLineItem) (entity.CartLineItem, error) {
	res, err := r.shard(sessionID).ExecContext(ctx, saveLineQuery, sessionID, line.ProductID, string(line.Unit), line.Quantity, line.UnitPriceAtTime, line.TotalPriceAtTime)
	if err != nil {
		return entity.CartLineItem{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return entity.CartLineItem{}, err
	}
	line.ServerID = strconv.FormatInt(id, 10)
	return line, nil
}

// SaveLines upserts lines in one transaction. Existing lines keep their ids.
func (r *CartRepository) SaveLines(ctx context.Context, sessionID string, lines []entity.CartLineItem) error {
	tx, err := r.shard(sessionID).BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, line := range lines {
		_, err = tx.ExecContext(ctx, saveLineQuery, sessionID, line.ProductID, string(line.Unit), line.Quantity, line.UnitPriceAtTime, line.TotalPriceAtTime)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (r *CartRepository) DeleteLine(ctx context.Context, sessionID, serverID string) error {
	id, err := strconv.ParseInt(serverID, 10, 64)
	if err != nil {
		return fmt.Errorf("cart line %q: %w", serverID, entity.ErrCartLineNotFound)
	}

	res, err := r.shard(sessionID).ExecContext(ctx, `DELETE FROM cart_lines WHERE id = ? AND session_id = ?`, id, sessionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cart line %s: %w", serverID, entity.ErrCartLineNotFound)
	}
	return nil
}

func (r *CartRepository) ClearLines(ctx context.Context, sessionID string) error {
	_, err := r.shard(sessionID).ExecContext(ctx, `DELETE FROM cart_lines WHERE session_id = ?`, sessionID)
	return err
}
