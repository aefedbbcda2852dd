//go:build integration

package journal

import (
	"context"
	"testing"

	"github.com/Sternrassler/xog-migrate/pkg/migrate"
	"github.com/Sternrassler/xog-migrate/pkg/query"
	"github.com/Sternrassler/xog-migrate/pkg/xog"
	"github.com/beevik/etree"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestJournal_Integration_RecordsPages(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	runJournalScenario(t, New(client, "it-ok", Config{StorePayloads: true}, zerolog.Nop()))
}

func TestJournal_Integration_FailedWrite(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	runFailedWriteScenario(t, New(client, "it-fail", DefaultConfig(), zerolog.Nop()))
}

// session answers reads with three pages and accepts every write.
type session struct {
	reads int
}

func (s *session) Name() string        { return "it" }
func (s *session) Authenticated() bool { return true }

func (s *session) Call(ctx context.Context, body *etree.Element) (*xog.Response, error) {
	if body.SelectElement("Header").SelectAttrValue("action", "") != "read" {
		return &xog.Response{Payload: body}, nil
	}
	s.reads++
	resp := &xog.Response{Payload: etree.NewElement("NikuDataBus")}
	if s.reads < 3 {
		next := s.reads * 50
		resp.Skip = &next
	}
	return resp, nil
}

func TestJournal_Integration_Migration(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	j := New(client, "it-migration", DefaultConfig(), zerolog.Nop())
	if err := j.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	src := &session{}
	dest := &session{}
	req := query.Project(query.DefaultProjectOptions(), query.Equals("active", true))

	// Writes keep the read header; mark them so the destination accepts them.
	toWrite := func(page *etree.Element) (*etree.Element, error) {
		out := page.Copy()
		out.CreateElement("Header").CreateAttr("action", "write")
		return out, nil
	}

	_, err := migrate.New(src, dest, migrate.Config{Concurrency: 1}, migrate.WithObserver(j)).Migrate(ctx, req, toWrite)
	if finishErr := j.Finish(ctx, err); finishErr != nil {
		t.Fatalf("Finish() error = %v", finishErr)
	}
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	state, err := j.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state.Status != StatusCompleted || state.PagesRead != 3 || state.PagesWritten != 3 {
		t.Errorf("state = %+v, want completed with 3 pages read and written", state)
	}
}
