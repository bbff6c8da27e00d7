package mongo_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/artpar/apigen/adapters/mongo"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/core/storage/storagetest"
)

var (
	once      sync.Once
	sharedURI string
	initErr   error
)

// mongoURI starts one mongo:7 container for the whole run. Tests are
// skipped under -short or when no container runtime is reachable.
func mongoURI(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("mongo contract needs a container; skipped in -short mode")
	}

	once.Do(func() {
		sharedURI, initErr = startContainer()
	})
	if initErr != nil {
		t.Skipf("mongo container unavailable: %v", initErr)
	}
	return sharedURI
}

func startContainer() (uri string, err error) {
	defer func() {
		// testcontainers panics when no Docker host can be found.
		if r := recover(); r != nil {
			err = fmt.Errorf("docker: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForLog("Waiting for connections").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		return "", fmt.Errorf("get mapped port: %w", err)
	}
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port()), nil
}

func TestContract(t *testing.T) {
	uri := mongoURI(t)
	n := 0

	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		n++
		a := mongo.New(mongo.Config{URI: uri, Database: fmt.Sprintf("contract_%d", n)}, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Connect(ctx); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		return a
	})
}

func TestRecordsHideNativeID(t *testing.T) {
	uri := mongoURI(t)
	ctx := context.Background()

	a := mongo.New(mongo.Config{URI: uri, Database: "native_id"}, nil)
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer func() {
		a.DropDatabase(ctx)
		a.Close(ctx)
	}()

	if err := a.AddModel(ctx, "widget", storagetest.Schema()); err != nil {
		t.Fatalf("AddModel failed: %v", err)
	}
	raw, _ := a.Collection("widget")
	c := raw.(storage.Collection)

	rec, err := c.Create(ctx, storage.Record{"name": "x"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	id, ok := rec["id"].(string)
	if !ok || len(id) != 24 || strings.Trim(id, "0123456789abcdef") != "" {
		t.Errorf("id = %#v, want 24 hex chars", rec["id"])
	}
	if _, ok := rec["_id"]; ok {
		t.Error("_id must not leave the adapter")
	}

	all, _ := c.Find(ctx, storage.Query{"id": id})
	if len(all) != 1 {
		t.Fatalf("find by id query returned %d records", len(all))
	}
	if _, ok := all[0]["_id"]; ok {
		t.Error("_id must not appear in find results")
	}
}
