//go:build integration

package api

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/database"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/preference"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "facecheck_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Printf("Failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")
	connStr := fmt.Sprintf("postgres://test:test@%s:%s/facecheck_test?sslmode=disable", host, port.Port())

	if err := migrate(connStr); err != nil {
		fmt.Printf("Failed to run migrations: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	testDB, err = pgxpool.New(ctx, connStr)
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		fmt.Printf("Failed to terminate container: %v\n", err)
	}
	os.Exit(code)
}

func migrate(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return err
	}
	migrator, err := database.NewMigrator(db, "facecheck_test")
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()
	return migrator.Up()
}

func TestIntegration_APIURLSurvivesRestart(t *testing.T) {
	first := newTestRouter(t, preference.NewPGStore(testDB))
	state := createSession(t, first.App(), "browser-pg")

	status, body := call(t, first.App(), "PUT", "/v1/sessions/"+state.ID.String()+"/api-url", `{"api_url":"https://tunnel.example.com"}`)
	require.Equal(t, 200, status, string(body))

	// a fresh router and manager only share the database
	second := newTestRouter(t, preference.NewPGStore(testDB))
	again := createSession(t, second.App(), "browser-pg")
	assert.Equal(t, "https://tunnel.example.com", again.Selection.APIURL)

	stored, err := preference.NewPGStore(testDB).Get(context.Background(), preference.Key("browser-pg"))
	require.NoError(t, err)
	assert.Equal(t, "https://tunnel.example.com", stored)
}

func TestIntegration_ReadyReportsDatabase(t *testing.T) {
	router := NewRouter(quietLogger(), &Dependencies{
		ReadyChecks: map[string]handler.ReadinessCheck{"postgres": testDB.Ping},
	})
	router.Setup()

	status, _ := call(t, router.App(), "GET", "/ready", "")
	assert.Equal(t, 200, status)
}
