package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/graph"
	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/postgres"
)

// uniqueViolationCode is the PostgreSQL error code raised when an insert hits
// the (type, parent, child) unique index.
const uniqueViolationCode = "23505"

const edgeColumns = "id, link_type, parent_type, parent_id, child_type, child_id, creating_event_id, created_at, payload_kind, payload"

// Repository is the PostgreSQL implementation of graph.EdgeRepository.
type Repository struct {
	connection *postgres.Connection
}

// compile-time interface assertion
var _ graph.EdgeRepository = (*Repository)(nil)

// NewRepository wires a repository to the shared connection hub.
func NewRepository(connection *postgres.Connection) (*Repository, error) {
	if connection == nil {
		return nil, errors.New("postgres connection is required")
	}

	return &Repository{connection: connection}, nil
}

// Insert implements graph.EdgeRepository.
func (r *Repository) Insert(ctx context.Context, edge link.EconomicLink) error {
	db, err := r.connection.DB(ctx)
	if err != nil {
		return fmt.Errorf("acquire database: %w", err)
	}

	payloadKind, payloadJSON, err := encodePayload(edge.Payload)
	if err != nil {
		return err
	}

	const query = `INSERT INTO economic_link (` + edgeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = db.ExecContext(ctx, query,
		edge.ID,
		string(edge.Type),
		string(edge.Parent.Type),
		edge.Parent.ID,
		string(edge.Child.Type),
		edge.Child.ID,
		edge.CreatingEventID,
		edge.CreatedAt,
		string(payloadKind),
		payloadJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return graph.ErrDuplicateKey
		}

		return fmt.Errorf("insert edge: %w", err)
	}

	return nil
}

// ListByParent implements graph.EdgeRepository.
func (r *Repository) ListByParent(ctx context.Context, ref link.ArtifactRef, types ...link.LinkType) ([]link.EconomicLink, error) {
	return r.list(ctx, "parent_type", "parent_id", ref, types)
}

// ListByChild implements graph.EdgeRepository.
func (r *Repository) ListByChild(ctx context.Context, ref link.ArtifactRef, types ...link.LinkType) ([]link.EconomicLink, error) {
	return r.list(ctx, "child_type", "child_id", ref, types)
}

func (r *Repository) list(ctx context.Context, typeColumn, idColumn string, ref link.ArtifactRef, types []link.LinkType) ([]link.EconomicLink, error) {
	db, err := r.connection.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire database: %w", err)
	}

	query := `SELECT ` + edgeColumns + ` FROM economic_link WHERE ` + typeColumn + ` = $1 AND ` + idColumn + ` = $2`
	args := []any{string(ref.Type), ref.ID}

	if len(types) > 0 {
		placeholders := make([]string, 0, len(types))
		for _, linkType := range types {
			args = append(args, string(linkType))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}

		query += " AND link_type IN (" + strings.Join(placeholders, ", ") + ")"
	}

	query += " ORDER BY created_at, id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var edges []link.EconomicLink

	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}

		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}

	return edges, nil
}

// Find implements graph.EdgeRepository.
func (r *Repository) Find(ctx context.Context, linkType link.LinkType, parent, child link.ArtifactRef) (link.EconomicLink, error) {
	db, err := r.connection.DB(ctx)
	if err != nil {
		return link.EconomicLink{}, fmt.Errorf("acquire database: %w", err)
	}

	const query = `SELECT ` + edgeColumns + ` FROM economic_link
		WHERE link_type = $1 AND parent_type = $2 AND parent_id = $3 AND child_type = $4 AND child_id = $5`

	row := db.QueryRowContext(ctx, query,
		string(linkType),
		string(parent.Type),
		parent.ID,
		string(child.Type),
		child.ID,
	)

	edge, err := scanEdge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return link.EconomicLink{}, graph.ErrEdgeNotFound
		}

		return link.EconomicLink{}, err
	}

	return edge, nil
}

func encodePayload(payload link.Payload) (link.PayloadKind, []byte, error) {
	if payload == nil {
		return link.PayloadNone, nil, nil
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return link.PayloadNone, nil, fmt.Errorf("encode payload: %w", err)
	}

	return payload.Kind(), encoded, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEdge(row rowScanner) (link.EconomicLink, error) {
	var (
		id              uuid.UUID
		linkType        string
		parentType      string
		parentID        uuid.UUID
		childType       string
		childID         uuid.UUID
		creatingEventID uuid.UUID
		createdAt       time.Time
		payloadKind     string
		payloadJSON     []byte
	)

	err := row.Scan(&id, &linkType, &parentType, &parentID, &childType, &childID, &creatingEventID, &createdAt, &payloadKind, &payloadJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return link.EconomicLink{}, err
		}

		return link.EconomicLink{}, fmt.Errorf("scan edge: %w", err)
	}

	payload, err := link.DecodePayload(link.PayloadKind(payloadKind), payloadJSON)
	if err != nil {
		return link.EconomicLink{}, err
	}

	return link.EconomicLink{
		ID:              id,
		Type:            link.LinkType(linkType),
		Parent:          link.ArtifactRef{Type: link.ArtifactType(parentType), ID: parentID},
		Child:           link.ArtifactRef{Type: link.ArtifactType(childType), ID: childID},
		CreatingEventID: creatingEventID,
		CreatedAt:       createdAt,
		Payload:         payload,
	}, nil
}
