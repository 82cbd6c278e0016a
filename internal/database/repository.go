// Package database provides PostgreSQL storage for the reference ERP
// records: damage and inventory taxonomies, bodywork details and checklist
// answers.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/config"
)

// Repository defines the record operations behind the ERP endpoints.
type Repository interface {
	// DetailTypes lists the damage-type taxonomy.
	DetailTypes(ctx context.Context) ([]DetailType, error)

	// InventoryTypes lists every inventory type ordered by position.
	InventoryTypes(ctx context.Context) ([]InventoryType, error)

	// InventoryItems lists the checklist items of an inventory type.
	InventoryItems(ctx context.Context, invTypeID int64) ([]InventoryItem, error)

	// BodyworkDetails lists the damage points of an order.
	BodyworkDetails(ctx context.Context, orderID int64) ([]BodyworkDetail, error)

	// CreateBodyworkDetails inserts a batch atomically and returns the rows
	// in input order.
	CreateBodyworkDetails(ctx context.Context, in []DetailInput) ([]BodyworkDetail, error)

	// UpdateBodyworkDetail replaces a damage point. Returns nil when it
	// does not exist.
	UpdateBodyworkDetail(ctx context.Context, id int64, in DetailInput) (*BodyworkDetail, error)

	// DeleteBodyworkDetail removes a damage point.
	DeleteBodyworkDetail(ctx context.Context, id int64) error

	// InventoryData lists the saved answers of an order for one type.
	InventoryData(ctx context.Context, orderID, invTypeID int64) ([]InventoryData, error)

	// UpsertInventoryData writes answers keyed by (order, item).
	UpsertInventoryData(ctx context.Context, in []InventoryData) error

	// Close closes the database connection.
	Close()
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(cfg *config.Config, logger *zap.Logger) (Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &PostgresRepository{
		pool:   pool,
		logger: logger,
	}

	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Connected to PostgreSQL database")
	return repo, nil
}

// migrate creates the tables if they don't exist and seeds the default
// taxonomy.
func (r *PostgresRepository) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS bodywork_detail_types (
			detail_type_id BIGSERIAL PRIMARY KEY,
			type VARCHAR(64) NOT NULL UNIQUE,
			color VARCHAR(32) NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS inventory_types (
			inv_type_id BIGSERIAL PRIMARY KEY,
			name VARCHAR(128) NOT NULL UNIQUE,
			position INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			kind VARCHAR(16) NOT NULL DEFAULT 'generic'
		);

		CREATE TABLE IF NOT EXISTS inventory_items (
			item_id BIGSERIAL PRIMARY KEY,
			inv_type_id BIGINT NOT NULL REFERENCES inventory_types(inv_type_id) ON DELETE CASCADE,
			label VARCHAR(256) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			input_type VARCHAR(16) NOT NULL DEFAULT 'three_options',
			picture_upload BOOLEAN NOT NULL DEFAULT FALSE,
			is_mandatory BOOLEAN NOT NULL DEFAULT FALSE,
			position INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS bodywork_details (
			detail_id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL,
			view_key VARCHAR(16) NOT NULL,
			x DOUBLE PRECISION NOT NULL,
			y DOUBLE PRECISION NOT NULL,
			detail_type_id BIGINT REFERENCES bodywork_detail_types(detail_type_id) ON DELETE SET NULL,
			detail_notes TEXT NOT NULL DEFAULT '',
			picture_path TEXT,
			is_free_selection BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_bodywork_details_order ON bodywork_details(order_id);

		CREATE TABLE IF NOT EXISTS inventory_data (
			order_id BIGINT NOT NULL,
			item_id BIGINT NOT NULL REFERENCES inventory_items(item_id) ON DELETE CASCADE,
			data JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (order_id, item_id)
		);

		INSERT INTO bodywork_detail_types (type, color) VALUES
			('Rayón', 'rojo'),
			('Golpe', 'azul'),
			('Abolladura', 'naranja'),
			('Pintura', 'verde'),
			('Óxido', 'amarillo')
		ON CONFLICT (type) DO NOTHING;

		INSERT INTO inventory_types (name, position, is_active, kind) VALUES
			('Carrocería', 1, TRUE, 'bodywork')
		ON CONFLICT (name) DO NOTHING;
	`

	_, err := r.pool.Exec(ctx, query)
	return err
}

// DetailTypes lists the damage-type taxonomy.
func (r *PostgresRepository) DetailTypes(ctx context.Context) ([]DetailType, error) {
	query := `SELECT detail_type_id, type, color FROM bodywork_detail_types ORDER BY detail_type_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to get detail types", zap.Error(err))
		return nil, fmt.Errorf("failed to get detail types: %w", err)
	}
	defer rows.Close()

	types := []DetailType{}
	for rows.Next() {
		var t DetailType
		if err := rows.Scan(&t.ID, &t.Type, &t.Color); err != nil {
			return nil, fmt.Errorf("failed to scan detail type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// InventoryTypes lists every inventory type ordered by position.
func (r *PostgresRepository) InventoryTypes(ctx context.Context) ([]InventoryType, error) {
	query := `
		SELECT inv_type_id, name, position, is_active, kind
		FROM inventory_types
		ORDER BY position, inv_type_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to get inventory types", zap.Error(err))
		return nil, fmt.Errorf("failed to get inventory types: %w", err)
	}
	defer rows.Close()

	types := []InventoryType{}
	for rows.Next() {
		var t InventoryType
		if err := rows.Scan(&t.ID, &t.Name, &t.Position, &t.IsActive, &t.Kind); err != nil {
			return nil, fmt.Errorf("failed to scan inventory type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// InventoryItems lists the checklist items of an inventory type.
func (r *PostgresRepository) InventoryItems(ctx context.Context, invTypeID int64) ([]InventoryItem, error) {
	query := `
		SELECT item_id, inv_type_id, label, description, input_type, picture_upload, is_mandatory, position
		FROM inventory_items
		WHERE inv_type_id = $1
		ORDER BY position, item_id
	`

	rows, err := r.pool.Query(ctx, query, invTypeID)
	if err != nil {
		r.logger.Error("Failed to get inventory items", zap.Int64("inv_type_id", invTypeID), zap.Error(err))
		return nil, fmt.Errorf("failed to get inventory items: %w", err)
	}
	defer rows.Close()

	items := []InventoryItem{}
	for rows.Next() {
		var it InventoryItem
		err := rows.Scan(
			&it.ItemID,
			&it.InvTypeID,
			&it.Label,
			&it.Description,
			&it.InputType,
			&it.PictureUpload,
			&it.IsMandatory,
			&it.Position,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const detailColumns = `detail_id, order_id, view_key, x, y, detail_type_id, detail_notes, picture_path, is_free_selection`

// BodyworkDetails lists the damage points of an order.
func (r *PostgresRepository) BodyworkDetails(ctx context.Context, orderID int64) ([]BodyworkDetail, error) {
	query := `SELECT ` + detailColumns + ` FROM bodywork_details WHERE order_id = $1 ORDER BY detail_id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		r.logger.Error("Failed to get bodywork details", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to get bodywork details: %w", err)
	}
	defer rows.Close()

	details := []BodyworkDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, *d)
	}
	return details, rows.Err()
}

// CreateBodyworkDetails inserts the batch in one transaction. Rows come
// back in input order.
func (r *PostgresRepository) CreateBodyworkDetails(ctx context.Context, in []DetailInput) ([]BodyworkDetail, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO bodywork_details (order_id, view_key, x, y, detail_type_id, detail_notes, picture_path, is_free_selection)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + detailColumns

	batch := &pgx.Batch{}
	for _, d := range in {
		batch.Queue(query, d.OrderID, d.View, d.X, d.Y, d.DetailTypeID, d.DetailNotes, d.PicturePath, d.IsFreeSelection)
	}

	br := tx.SendBatch(ctx, batch)
	created := make([]BodyworkDetail, 0, len(in))
	for range in {
		d, err := scanDetail(br.QueryRow())
		if err != nil {
			_ = br.Close()
			r.logger.Error("Failed to create bodywork details", zap.Error(err))
			return nil, err
		}
		created = append(created, *d)
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("failed to create bodywork details: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit bodywork details: %w", err)
	}

	r.logger.Info("Created bodywork details", zap.Int("count", len(created)))
	return created, nil
}

// UpdateBodyworkDetail replaces the editable fields of a damage point.
func (r *PostgresRepository) UpdateBodyworkDetail(ctx context.Context, id int64, in DetailInput) (*BodyworkDetail, error) {
	query := `
		UPDATE bodywork_details
		SET view_key = $2, x = $3, y = $4, detail_type_id = $5, detail_notes = $6,
			picture_path = $7, is_free_selection = $8, updated_at = $9
		WHERE detail_id = $1
		RETURNING ` + detailColumns

	d, err := scanDetail(r.pool.QueryRow(ctx, query,
		id,
		in.View,
		in.X,
		in.Y,
		in.DetailTypeID,
		in.DetailNotes,
		in.PicturePath,
		in.IsFreeSelection,
		time.Now().UTC(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to update bodywork detail", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}

	r.logger.Info("Updated bodywork detail", zap.Int64("id", id))
	return d, nil
}

// DeleteBodyworkDetail removes a damage point.
func (r *PostgresRepository) DeleteBodyworkDetail(ctx context.Context, id int64) error {
	query := `DELETE FROM bodywork_details WHERE detail_id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete bodywork detail", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete bodywork detail: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.ErrNotFound
	}

	r.logger.Info("Deleted bodywork detail", zap.Int64("id", id))
	return nil
}

// InventoryData lists the saved answers of an order for one type.
func (r *PostgresRepository) InventoryData(ctx context.Context, orderID, invTypeID int64) ([]InventoryData, error) {
	query := `
		SELECT d.order_id, d.item_id, d.data
		FROM inventory_data d
		JOIN inventory_items i ON i.item_id = d.item_id
		WHERE d.order_id = $1 AND i.inv_type_id = $2
		ORDER BY i.position, d.item_id
	`

	rows, err := r.pool.Query(ctx, query, orderID, invTypeID)
	if err != nil {
		r.logger.Error("Failed to get inventory data", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to get inventory data: %w", err)
	}
	defer rows.Close()

	data := []InventoryData{}
	for rows.Next() {
		var d InventoryData
		var raw []byte
		if err := rows.Scan(&d.OrderID, &d.ItemID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan inventory data: %w", err)
		}
		d.Data = raw
		data = append(data, d)
	}
	return data, rows.Err()
}

// UpsertInventoryData writes answers keyed by (order, item) in one
// transaction.
func (r *PostgresRepository) UpsertInventoryData(ctx context.Context, in []InventoryData) error {
	query := `
		INSERT INTO inventory_data (order_id, item_id, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, item_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, d := range in {
		batch.Queue(query, d.OrderID, d.ItemID, []byte(d.Data), now)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		r.logger.Error("Failed to upsert inventory data", zap.Int("count", len(in)), zap.Error(err))
		return fmt.Errorf("failed to upsert inventory data: %w", err)
	}

	r.logger.Info("Upserted inventory data", zap.Int("count", len(in)))
	return nil
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
	r.logger.Info("Closed database connection")
}

func scanDetail(row pgx.Row) (*BodyworkDetail, error) {
	var (
		d      BodyworkDetail
		typeID *int64
	)
	err := row.Scan(
		&d.DetailID,
		&d.OrderID,
		&d.View,
		&d.X,
		&d.Y,
		&typeID,
		&d.DetailNotes,
		&d.PicturePath,
		&d.IsFreeSelection,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan bodywork detail: %w", err)
	}
	if typeID != nil {
		d.DetailType = &DetailTypeRef{DetailTypeID: *typeID}
	}
	return &d, nil
}
