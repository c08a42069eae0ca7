// Package testutils starts the backing services used by integration tests.
// Tests that use it must skip under -short.
package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"studyrag/backend/internal/config"
)

type Service int

const (
	Postgres Service = iota
	Qdrant
	Weaviate
	NSQ
)

type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	DSN      string
	DBHost   string
	DBPort   int
	Weaviate *weaviate.Client
	NSQ      *nsq.Producer
	NSQDTCP  string
	NSQDHTTP string
	// QdrantURL is the REST base URL, e.g. http://localhost:32771.
	QdrantURL string

	services   map[Service]bool
	containers []testcontainers.Container
}

// NewIntegrationSuite prepares a suite for the given services, or all of
// them when none are named.
func NewIntegrationSuite(t *testing.T, services ...Service) *IntegrationSuite {
	if len(services) == 0 {
		services = []Service{Postgres, Qdrant, Weaviate, NSQ}
	}
	s := &IntegrationSuite{T: t, services: make(map[Service]bool)}
	for _, svc := range services {
		s.services[svc] = true
	}
	return s
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()
	if s.services[Postgres] {
		s.setupPostgres(ctx)
	}
	if s.services[Qdrant] {
		s.setupQdrant(ctx)
	}
	if s.services[Weaviate] {
		s.setupWeaviate(ctx)
	}
	if s.services[NSQ] {
		s.setupNSQ(ctx)
	}
}

func (s *IntegrationSuite) setupPostgres(ctx context.Context) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("studyrag_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.containers = append(s.containers, pgContainer)

	s.DSN, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DBHost, err = pgContainer.Host(ctx)
	require.NoError(s.T, err)
	mapped, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.DBPort = mapped.Int()

	s.DB, err = sql.Open("postgres", s.DSN)
	require.NoError(s.T, err)

	m, err := migrate.New(MigrationPath(), s.DSN)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())
}

// MigrationPath is the file:// URL of the repository's migrations directory.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s/../../migrations", filepath.Dir(b))
}

// AppConfig returns a configuration pointing at the suite's containers.
// Embedding settings are left to the caller.
func (s *IntegrationSuite) AppConfig() *config.Config {
	return &config.Config{
		DBHost:                     s.DBHost,
		DBPort:                     s.DBPort,
		DBUser:                     "test",
		DBPass:                     "test",
		DBName:                     "studyrag_test",
		MigrationPath:              MigrationPath(),
		NSQDHost:                   s.NSQDTCP,
		NSQDHTTP:                   s.NSQDHTTP,
		VectorBackend:              config.BackendQdrant,
		QdrantURL:                  s.QdrantURL,
		CollectionName:             "it_chunks",
		ChunkMaxLength:             500,
		ChunkOverlap:               50,
		ChunkWordWindow:            200,
		ChunkWordOverlap:           50,
		SearchLimit:                5,
		SearchScoreThreshold:       0.5,
		ContextMaxChunks:           5,
		ContextMaxChars:            4000,
		NoContextPolicy:            config.NoContextGeneral,
		RerankProvider:             "none",
		EmbeddingConcurrency:       2,
		EmbeddingMaxInputChars:     8000,
		IndexingConcurrency:        1,
		MaxUploadSizeMB:            5,
		UploadDir:                  s.T.TempDir(),
		QueryLogPath:               filepath.Join(s.T.TempDir(), "query.log"),
		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
	}
}

func (s *IntegrationSuite) setupQdrant(ctx context.Context) {
	c := s.start(ctx, testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:v1.12.4",
		ExposedPorts: []string{"6333/tcp"},
		WaitingFor:   wait.ForHTTP("/readyz").WithPort("6333/tcp").WithStartupTimeout(60 * time.Second),
	})
	s.QdrantURL = "http://" + s.endpoint(ctx, c, "6333")
}

func (s *IntegrationSuite) setupWeaviate(ctx context.Context) {
	c := s.start(ctx, testcontainers.ContainerRequest{
		Image:        "semitechnologies/weaviate:1.27.0",
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
	})

	var err error
	s.Weaviate, err = weaviate.NewClient(weaviate.Config{
		Host:   s.endpoint(ctx, c, "8080"),
		Scheme: "http",
	})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) setupNSQ(ctx context.Context) {
	c := s.start(ctx, testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	})
	s.NSQDTCP = s.endpoint(ctx, c, "4150")
	s.NSQDHTTP = s.endpoint(ctx, c, "4151")

	var err error
	s.NSQ, err = nsq.NewProducer(s.NSQDTCP, nsq.NewConfig())
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) start(ctx context.Context, req testcontainers.ContainerRequest) testcontainers.Container {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.containers = append(s.containers, c)
	return c
}

func (s *IntegrationSuite) endpoint(ctx context.Context, c testcontainers.Container, port string) string {
	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(s.T, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	for i := len(s.containers) - 1; i >= 0; i-- {
		s.containers[i].Terminate(ctx)
	}
}
