package ids

import (
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewProducesValidULIDs(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatalf("consecutive ids collided: %s", a)
	}
	if _, err := ulid.Parse(a); err != nil {
		t.Fatalf("not a ULID: %s (%v)", a, err)
	}
	if a > b {
		t.Fatalf("ids not monotonic: %s then %s", a, b)
	}
}

func TestNewIsSafeForConcurrentUse(t *testing.T) {
	const n = 200
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := New()
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != n {
		t.Fatalf("duplicates under concurrency: %d unique of %d", len(ids), n)
	}
}
