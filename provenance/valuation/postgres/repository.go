package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/postgres"
	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/valuation"
)

const uniqueViolationCode = "23505"

const lotColumns = "id, item_id, location, lot_date, quantity, total_cost, currency, method, source_type, source_id, created_at"

// Repository is the PostgreSQL implementation of valuation.LotRepository.
type Repository struct {
	connection *postgres.Connection
}

// compile-time interface assertion
var _ valuation.LotRepository = (*Repository)(nil)

// NewRepository wires a repository to the shared connection hub.
func NewRepository(connection *postgres.Connection) (*Repository, error) {
	if connection == nil {
		return nil, errors.New("postgres connection is required")
	}

	return &Repository{connection: connection}, nil
}

// Insert implements valuation.LotRepository.
func (r *Repository) Insert(ctx context.Context, lot valuation.CostLot) error {
	db, err := r.connection.DB(ctx)
	if err != nil {
		return fmt.Errorf("acquire database: %w", err)
	}

	const query = `INSERT INTO cost_lot (` + lotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = db.ExecContext(ctx, query,
		lot.ID,
		lot.ItemID,
		lot.Location,
		lot.LotDate,
		lot.Quantity.String(),
		lot.TotalCost.String(),
		lot.Currency,
		string(lot.Method),
		string(lot.Source.Type),
		lot.Source.ID,
		lot.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return valuation.ErrLotExists
		}

		return fmt.Errorf("insert lot: %w", err)
	}

	return nil
}

// Get implements valuation.LotRepository.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (valuation.CostLot, error) {
	db, err := r.connection.DB(ctx)
	if err != nil {
		return valuation.CostLot{}, fmt.Errorf("acquire database: %w", err)
	}

	const query = `SELECT ` + lotColumns + ` FROM cost_lot WHERE id = $1`

	lot, err := scanLot(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return valuation.CostLot{}, valuation.ErrLotNotFound
		}

		return valuation.CostLot{}, err
	}

	return lot, nil
}

// ListByItem implements valuation.LotRepository.
func (r *Repository) ListByItem(ctx context.Context, itemID string, filter valuation.LotFilter) ([]valuation.CostLot, error) {
	db, err := r.connection.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire database: %w", err)
	}

	query := `SELECT ` + lotColumns + ` FROM cost_lot WHERE item_id = $1`
	args := []any{itemID}

	if filter.Location != "" {
		args = append(args, filter.Location)
		query += fmt.Sprintf(" AND location = $%d", len(args))
	}

	if filter.AsOf != nil {
		args = append(args, *filter.AsOf)
		query += fmt.Sprintf(" AND lot_date <= $%d", len(args))
	}

	query += " ORDER BY lot_date, created_at"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()

	var lots []valuation.CostLot

	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}

		lots = append(lots, lot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lots: %w", err)
	}

	return lots, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(row rowScanner) (valuation.CostLot, error) {
	var (
		id         uuid.UUID
		itemID     string
		location   string
		lotDate    time.Time
		quantity   string
		totalCost  string
		currency   string
		method     string
		sourceType string
		sourceID   uuid.UUID
		createdAt  time.Time
	)

	err := row.Scan(&id, &itemID, &location, &lotDate, &quantity, &totalCost, &currency, &method, &sourceType, &sourceID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return valuation.CostLot{}, err
		}

		return valuation.CostLot{}, fmt.Errorf("scan lot: %w", err)
	}

	parsedQuantity, err := decimal.NewFromString(quantity)
	if err != nil {
		return valuation.CostLot{}, fmt.Errorf("parse lot quantity: %w", err)
	}

	parsedCost, err := decimal.NewFromString(totalCost)
	if err != nil {
		return valuation.CostLot{}, fmt.Errorf("parse lot total cost: %w", err)
	}

	return valuation.CostLot{
		ID:        id,
		ItemID:    itemID,
		Location:  location,
		LotDate:   lotDate,
		Quantity:  parsedQuantity,
		TotalCost: parsedCost,
		Currency:  currency,
		Method:    valuation.CostingMethod(method),
		Source:    link.ArtifactRef{Type: link.ArtifactType(sourceType), ID: sourceID},
		CreatedAt: createdAt,
	}, nil
}
