//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/graph"
	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
	pgconn "github.com/limeypieface/finance-accounting-prototype-sub005/provenance/postgres"
)

// setupRepository starts a disposable PostgreSQL container, applies the edge
// migrations, and returns a live repository. The container is terminated via
// t.Cleanup.
func setupRepository(t *testing.T) *Repository {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	connection := &pgconn.Connection{
		PrimaryDSN:     dsn,
		ReplicaDSN:     dsn,
		DatabaseName:   "testdb",
		MigrationsPath: "migrations",
	}
	require.NoError(t, connection.Connect(ctx))
	t.Cleanup(func() { require.NoError(t, connection.Close()) })

	repo, err := NewRepository(connection)
	require.NoError(t, err)

	return repo
}

func testEdge(t *testing.T, linkType link.LinkType, parent, child link.ArtifactRef, payload link.Payload) link.EconomicLink {
	t.Helper()

	edge, err := link.NewEconomicLink(linkType, parent, child, uuid.New(), payload)
	require.NoError(t, err)

	return edge
}

func TestIntegration_EdgeRepository_InsertAndFind(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	invoice := link.ArtifactRef{Type: link.ArtifactInvoice, ID: uuid.New()}
	payment := link.ArtifactRef{Type: link.ArtifactPayment, ID: uuid.New()}

	edge := testEdge(t, link.LinkPaidBy, invoice, payment, link.AppliedAmount{
		Amount:   decimal.NewFromInt(250),
		Currency: "USD",
	})
	require.NoError(t, repo.Insert(ctx, edge))

	found, err := repo.Find(ctx, link.LinkPaidBy, invoice, payment)
	require.NoError(t, err)
	assert.Equal(t, edge.ID, found.ID)
	assert.Equal(t, edge.CreatingEventID, found.CreatingEventID)

	applied, ok := found.Payload.(link.AppliedAmount)
	require.True(t, ok)
	assert.True(t, applied.Amount.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "USD", applied.Currency)

	// A second insert with the same key trips the unique index.
	racing := testEdge(t, link.LinkPaidBy, invoice, payment, nil)
	err = repo.Insert(ctx, racing)
	require.ErrorIs(t, err, graph.ErrDuplicateKey)

	_, err = repo.Find(ctx, link.LinkPaidBy, payment, invoice)
	require.ErrorIs(t, err, graph.ErrEdgeNotFound)
}

func TestIntegration_EdgeRepository_ListFilters(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	invoice := link.ArtifactRef{Type: link.ArtifactInvoice, ID: uuid.New()}
	payment := link.ArtifactRef{Type: link.ArtifactPayment, ID: uuid.New()}
	journal := link.ArtifactRef{Type: link.ArtifactJournalEntry, ID: uuid.New()}

	require.NoError(t, repo.Insert(ctx, testEdge(t, link.LinkPaidBy, invoice, payment, nil)))
	require.NoError(t, repo.Insert(ctx, testEdge(t, link.LinkDerivedFrom, invoice, journal, nil)))

	all, err := repo.ListByParent(ctx, invoice)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	paid, err := repo.ListByParent(ctx, invoice, link.LinkPaidBy)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, payment, paid[0].Child)

	incoming, err := repo.ListByChild(ctx, journal)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, invoice, incoming[0].Parent)

	none, err := repo.ListByChild(ctx, journal, link.LinkPaidBy)
	require.NoError(t, err)
	assert.Empty(t, none)
}
