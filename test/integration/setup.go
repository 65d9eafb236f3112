package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vncsmyrnk/livepoll/internal/adapters/handler/http"
	pgrepo "github.com/vncsmyrnk/livepoll/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/livepoll/internal/adapters/statestore/bolt"
	"github.com/vncsmyrnk/livepoll/internal/core/engine"
	"github.com/vncsmyrnk/livepoll/internal/core/services"
)

const testJWTSecret = "test-secret"

// testFlushDelay keeps the staleness window observable but short enough for
// Eventually assertions.
const testFlushDelay = 300 * time.Millisecond

type testApp struct {
	DB        *sql.DB
	Store     *bolt.Store
	Registry  *engine.Registry
	Server    *httptest.Server
	container testcontainers.Container
}

func setupPostgresContainer(ctx context.Context) (testcontainers.Container, string, error) {
	dbName := "testdb"
	user := "user"
	password := "password"

	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", err
	}

	return pgContainer, connStr, nil
}

func applyMigrations(db *sql.DB) error {
	dirPath := "../../internal/adapters/repository/postgres/migrations"

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if !strings.HasSuffix(entry.Name(), "up.sql") {
			continue
		}

		fullPath := filepath.Join(dirPath, entry.Name())
		content, err := os.ReadFile(fullPath)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		_, err = db.Exec(string(content))
		if err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	container, connStr, err := setupPostgresContainer(ctx)
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, applyMigrations(db))

	store, err := bolt.Open(filepath.Join(t.TempDir(), "counters.db"))
	require.NoError(t, err)

	pollRepo := pgrepo.NewPollRepository(db)
	voteRepo := pgrepo.NewVoteRepository(db)

	registry := engine.NewRegistry(store, pgrepo.NewCountWriter(db), voteRepo,
		engine.WithFlushDelay(testFlushDelay))

	handler := http.NewHandler(
		http.NewPollHandler(services.NewPollService(pollRepo, registry)),
		http.NewVoteHandler(services.NewVoteService(pollRepo, voteRepo, registry)),
		[]byte(testJWTSecret),
	)
	server := httptest.NewServer(handler)

	return &testApp{
		DB:        db,
		Store:     store,
		Registry:  registry,
		Server:    server,
		container: container,
	}
}

func (a *testApp) Teardown(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.Server.Close()
	require.NoError(t, a.Registry.Close(ctx))
	require.NoError(t, a.Store.Close())
	require.NoError(t, a.DB.Close())
	require.NoError(t, a.container.Terminate(ctx))
}

func createToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(15 * time.Minute).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signedToken
}
