package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/persistence"
	"github.com/dukex/dataflow/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func TestMain(m *testing.M) {
	code := m.Run()

	if postgresContainer != nil {
		if err := testcontainers.TerminateContainer(postgresContainer); err != nil {
			slog.Error("Failed to terminate postgres container", "error", err)
		}
	}

	os.Exit(code)
}

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"projects", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("dataflow_test"),
			postgres.WithUsername("dataflow"),
			postgres.WithPassword("dataflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func newDocument(name string) *models.ProjectDocument {
	return &models.ProjectDocument{
		Project: models.Project{
			ID:          uuid.NewString(),
			Name:        name,
			Description: "quarterly numbers",
			Nodes: []*models.FlowNode{
				{ID: "n1", ModuleID: "data_input", Config: map[string]any{"value": 10.0}},
				{ID: "n2", ModuleID: "double"},
				{ID: "n3", ModuleID: "double"},
			},
			Edges: []*models.FlowEdge{
				{ID: "e1", Source: models.PortRef{NodeID: "n1", PortID: "value"}, Target: models.PortRef{NodeID: "n2", PortID: "value"}},
			},
			Globals: []*models.GlobalVariable{{Name: "taxRate", Value: 0.2, Description: "VAT"}},
		},
		Modules: []*models.ModuleDefinition{
			{ID: "double", Name: "Double", Category: models.CategoryCustom, Code: "{'value': inputs.value * 2.0}"},
		},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'projects')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "projects table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestNewPersistence_SaveAndRetrieveProject(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	doc := newDocument("Sales")

	err := p.SaveProject(ctx, doc)
	require.NoError(t, err)
	assert.False(t, doc.CreatedAt.IsZero())
	assert.False(t, doc.UpdatedAt.IsZero())

	retrieved, err := p.ProjectByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Name, retrieved.Name)
	assert.Equal(t, doc.Description, retrieved.Description)
	assert.Len(t, retrieved.Nodes, 3)
	assert.Equal(t, 10.0, retrieved.Nodes[0].Config["value"])
	assert.Equal(t, "VAT", retrieved.Globals[0].Description)
	require.Len(t, retrieved.Modules, 1)
	assert.Equal(t, "double", retrieved.Modules[0].ID)

	_, err = p.ProjectByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsProjectNotFound(err))
}

func TestNewPersistence_UpdateAndList(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	first := newDocument("First")
	second := newDocument("Second")

	require.NoError(t, p.SaveProject(ctx, first))
	require.NoError(t, p.SaveProject(ctx, second))

	first.Name = "First (renamed)"
	first.UpdatedAt = time.Now().UTC().Add(time.Minute)
	require.NoError(t, p.SaveProject(ctx, first))

	projects, err := p.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "First (renamed)", projects[0].Name)
	assert.Equal(t, second.ID, projects[1].ID)
}

func TestNewPersistence_ProjectsUsingModule(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	doc := newDocument("Sales")
	require.NoError(t, p.SaveProject(ctx, doc))

	ids, err := p.ProjectsUsingModule(ctx, "double")
	require.NoError(t, err)
	assert.Equal(t, []string{doc.ID}, ids)

	ids, err = p.ProjectsUsingModule(ctx, "unused")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNewPersistence_DeleteProject(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	doc := newDocument("Sales")
	require.NoError(t, p.SaveProject(ctx, doc))

	require.NoError(t, p.DeleteProject(ctx, doc.ID))
	require.NoError(t, p.DeleteProject(ctx, doc.ID))

	_, err := p.ProjectByID(ctx, doc.ID)
	assert.True(t, persistence.IsProjectNotFound(err))
}

func TestNewPersistence_SaveRejectsMissingID(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	doc := newDocument("Nameless")
	doc.ID = ""

	assert.True(t, persistence.IsInvalidProject(p.SaveProject(ctx, doc)))
}
