package tests

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/habitcell/server/internal/config"
	"github.com/habitcell/server/internal/db"
	httphandler "github.com/habitcell/server/internal/http"
	"github.com/habitcell/server/internal/recovery"
	"github.com/habitcell/server/internal/repo"
)

// captureSender records delivered codes so tests can read them back
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *captureSender) SendVerificationCode(_ context.Context, toEmail, code string, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = map[string]string{}
	}
	c.codes[toEmail] = code
	return nil
}

// Code returns the last code sent to email
func (c *captureSender) Code(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}

// testServer holds the server and DB for integration tests
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
	Mail   *captureSender
}

func requireDatabase(t *testing.T) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	if os.Getenv("CODE_SALT") == "" {
		t.Setenv("CODE_SALT", "test-code-salt")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	requireDatabase(t)

	cfg, err := config.Load()
	require.NoError(t, err, "config load must succeed for integration test")

	database, err := db.Open(context.Background(), cfg.DatabaseURL)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(database), "migrations must run successfully")
	require.NoError(t, db.Truncate(context.Background(), database), "truncate recovery tables")
	return database
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	database := openTestDB(t)

	sender := &captureSender{}
	svc := recovery.NewService(
		repo.NewDeviceRepo(database),
		repo.NewVerificationRepo(database),
		repo.NewBackupRepo(database),
		sender,
		"test-code-salt",
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	router := httphandler.NewRouter(svc, httphandler.Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database, Mail: sender}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

func (s *testServer) Truncate(t *testing.T) {
	t.Helper()
	require.NoError(t, db.Truncate(context.Background(), s.DB), "truncate recovery tables")
}
