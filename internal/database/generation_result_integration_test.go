//go:build integration

package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"cinegenius-server/internal/database"
	"cinegenius-server/internal/migration"
	"cinegenius-server/internal/models"
)

type GenerationResultRepoSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	pool        *pgxpool.Pool
	repo        database.GenerationResultRepository
	logger      *zap.Logger
}

func (s *GenerationResultRepoSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.logger, err = zap.NewDevelopment()
	require.NoError(s.T(), err)

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)
	s.pool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err)

	require.NoError(s.T(), migration.NewMigrator(s.pool, s.logger).Up(s.ctx))
	s.repo = database.NewPgGenerationResultRepository(s.pool, s.logger)
}

func (s *GenerationResultRepoSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Error("Failed to terminate postgres container", zap.Error(err))
		}
	}
}

func (s *GenerationResultRepoSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, "TRUNCATE generation_results")
	require.NoError(s.T(), err)
}

func TestGenerationResultRepoSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Fatalf("Docker client init error: %v. Ensure Docker is running and accessible.", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Fatalf("Docker daemon is not running or accessible: %v", err)
	}
	cli.Close()

	suite.Run(t, new(GenerationResultRepoSuite))
}

func newResult(sessionID string, at time.Time) *models.GenerationResult {
	return &models.GenerationResult{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		Task:             models.TaskGenerateShotList,
		Backend:          "gemini",
		Model:            "gemini-2.5-flash",
		RawOutput:        `[{"shotNumber":1}]`,
		CreatedAt:        at,
		CompletedAt:      at.Add(time.Second),
		ProcessingTimeMs: 1000,
		PromptTokens:     12,
		CompletionTokens: 34,
	}
}

func (s *GenerationResultRepoSuite) TestSaveAndList() {
	t := s.T()
	base := time.Now().UTC().Truncate(time.Millisecond)

	older := newResult("s-1", base)
	newer := newResult("s-1", base.Add(time.Minute))
	other := newResult("s-2", base)
	for _, r := range []*models.GenerationResult{older, newer, other} {
		require.NoError(t, s.repo.Save(s.ctx, r))
	}

	results, err := s.repo.ListBySession(s.ctx, "s-1", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	s.Equal(newer.ID, results[0].ID)
	s.Equal(older.ID, results[1].ID)
	s.Equal(models.TaskGenerateShotList, results[0].Task)
	s.Equal(34, results[0].CompletionTokens)

	limited, err := s.repo.ListBySession(s.ctx, "s-1", 1)
	require.NoError(t, err)
	s.Len(limited, 1)
}

func (s *GenerationResultRepoSuite) TestSaveUpserts() {
	t := s.T()
	r := newResult("s-3", time.Now().UTC())
	require.NoError(t, s.repo.Save(s.ctx, r))

	r.RawOutput = ""
	r.ErrorKind = "malformed_output"
	r.Error = "bad json"
	require.NoError(t, s.repo.Save(s.ctx, r))

	results, err := s.repo.ListBySession(s.ctx, "s-3", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	s.Equal("malformed_output", results[0].ErrorKind)
	s.Equal("bad json", results[0].Error)
}

func (s *GenerationResultRepoSuite) TestListUnknownSessionIsEmpty() {
	results, err := s.repo.ListBySession(s.ctx, "missing", 5)
	s.Require().NoError(err)
	s.NotNil(results)
	s.Empty(results)
}
