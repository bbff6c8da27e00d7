package idgen_test

import (
	"sync"
	"testing"

	"github.com/artpar/apigen/adapters/idgen"
	"github.com/google/uuid"
)

func TestUUID_New(t *testing.T) {
	id := idgen.UUID{}.New()
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("New() = %q is not a UUID: %v", id, err)
	}
	if parsed.Version() != 4 {
		t.Errorf("version = %d, want 4", parsed.Version())
	}
}

func TestSequential_New(t *testing.T) {
	g := idgen.NewSequential("op-")
	if got := g.New(); got != "op-1" {
		t.Errorf("first = %q, want op-1", got)
	}
	if got := g.New(); got != "op-2" {
		t.Errorf("second = %q, want op-2", got)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("")

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.New()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("got %d distinct ids, want 50", len(seen))
	}
}
