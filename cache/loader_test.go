package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/viewcache/observe"
)

// countingProducer returns a producer that renders the current value of
// *source and counts its invocations.
func countingProducer(source *atomic.Value, calls *atomic.Int32) ProducerFunc {
	return func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(source.Load().(string)), nil
	}
}

func TestLoader_HitSkipsProducer(t *testing.T) {
	clock := NewManualClock(epoch)
	store := NewMemoryStore(WithClock(clock))
	loader := NewLoader(store)
	ctx := context.Background()

	var source atomic.Value
	source.Store("Cached Taxon")
	var calls atomic.Int32
	produce := countingProducer(&source, &calls)
	opts := Options{ExpiresIn: FiltersExpiry}

	first, err := loader.Fetch(ctx, "views/h/taxons", opts, produce)
	if err != nil || string(first) != "Cached Taxon" {
		t.Fatalf("first Fetch() = (%q, %v)", first, err)
	}

	source.Store("New Taxon")
	clock.Advance(FiltersExpiry - time.Second)

	second, err := loader.Fetch(ctx, "views/h/taxons", opts, produce)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("second Fetch() = %q, want cached %q", second, first)
	}
	if calls.Load() != 1 {
		t.Errorf("producer calls = %d, want 1", calls.Load())
	}

	clock.Advance(2 * time.Second)
	third, err := loader.Fetch(ctx, "views/h/taxons", opts, produce)
	if err != nil {
		t.Fatal(err)
	}
	if string(third) != "New Taxon" {
		t.Errorf("Fetch() after TTL = %q, want New Taxon", third)
	}
	if calls.Load() != 2 {
		t.Errorf("producer calls = %d, want 2", calls.Load())
	}
}

func TestLoader_DefaultTTLFromPolicy(t *testing.T) {
	clock := NewManualClock(epoch)
	store := NewMemoryStore(WithClock(clock))
	loader := NewLoader(store)
	ctx := context.Background()

	_, _ = loader.Fetch(ctx, "k", Options{}, func(context.Context) ([]byte, error) {
		return []byte("v"), nil
	})

	clock.Advance(FiltersExpiry)
	if !store.Exists(ctx, "k", Options{}) {
		t.Fatal("entry written without the policy's default TTL")
	}
	clock.Advance(time.Nanosecond)
	if store.Exists(ctx, "k", Options{}) {
		t.Fatal("entry outlived the policy's default TTL")
	}
}

func TestLoader_NoCachePolicyStoresNothing(t *testing.T) {
	store := NewMemoryStore()
	loader := NewLoader(store, WithPolicy(NoCachePolicy()))

	var calls atomic.Int32
	produce := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("v"), nil
	}
	for i := 0; i < 3; i++ {
		if _, err := loader.Fetch(context.Background(), "k", Options{}, produce); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 3 || store.Len() != 0 {
		t.Errorf("calls=%d len=%d, want 3 calls and nothing stored", calls.Load(), store.Len())
	}
}

func TestLoader_ProducerErrorNotCached(t *testing.T) {
	store := NewMemoryStore()
	loader := NewLoader(store)
	ctx := context.Background()
	boom := errors.New("catalog unavailable")

	_, err := loader.Fetch(ctx, "k", Options{ExpiresIn: time.Minute}, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Fetch() error = %v, want producer error", err)
	}
	if store.Exists(ctx, "k", Options{}) {
		t.Fatal("failure was cached")
	}

	got, err := loader.Fetch(ctx, "k", Options{ExpiresIn: time.Minute}, func(context.Context) ([]byte, error) {
		return []byte("recovered"), nil
	})
	if err != nil || string(got) != "recovered" {
		t.Fatalf("Fetch() after failure = (%q, %v)", got, err)
	}
}

// failingStore never holds anything and rejects every write.
type failingStore struct {
	err    error
	gets   atomic.Int32
	writes atomic.Int32
}

func (s *failingStore) Exists(context.Context, string, Options) bool { return false }
func (s *failingStore) Get(context.Context, string) ([]byte, bool) {
	s.gets.Add(1)
	return nil, false
}
func (s *failingStore) Set(context.Context, string, []byte, Options) error {
	s.writes.Add(1)
	return s.err
}
func (s *failingStore) Delete(context.Context, string) error { return nil }

func TestLoader_SetFailureStillReturnsValue(t *testing.T) {
	var logs bytes.Buffer
	mw := observe.NewMiddleware(nil, nil, observe.NewLoggerWithWriter("warn", "json", &logs))
	store := &failingStore{err: ErrBackendUnavailable}
	loader := NewLoader(store, WithMiddleware(mw))

	got, err := loader.FetchNamed(context.Background(), "taxons", "k", Options{ExpiresIn: time.Minute}, func(context.Context) ([]byte, error) {
		return []byte("computed"), nil
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v, want nil", err)
	}
	if string(got) != "computed" {
		t.Errorf("Fetch() = %q, want computed", got)
	}
	if store.writes.Load() != 1 {
		t.Errorf("writes = %d, want 1", store.writes.Load())
	}
	if !bytes.Contains(logs.Bytes(), []byte("value served uncached")) {
		t.Errorf("write failure not logged: %q", logs.String())
	}
}

func TestLoader_EncodingErrorPropagates(t *testing.T) {
	store := NewMemoryStore()
	loader := NewLoader(store)

	produce := JSONProducer(func(context.Context) (chan int, error) {
		return make(chan int), nil
	})

	_, err := loader.Fetch(context.Background(), "views/h/p", Options{ExpiresIn: time.Minute}, produce)
	if !errors.Is(err, ErrEncoding) {
		t.Fatalf("Fetch() error = %v, want ErrEncoding", err)
	}
	var encErr *EncodingError
	if !errors.As(err, &encErr) || encErr.Key != "views/h/p" {
		t.Errorf("EncodingError key = %+v, want the fetched key", encErr)
	}
	if store.Len() != 0 {
		t.Error("unencodable value was stored")
	}
}

func TestLoader_StoreEncodingErrorPropagates(t *testing.T) {
	store := &failingStore{err: &EncodingError{Key: "k", Err: errors.New("value too large for envelope")}}
	loader := NewLoader(store)

	_, err := loader.Fetch(context.Background(), "k", Options{ExpiresIn: time.Minute}, func(context.Context) ([]byte, error) {
		return []byte("v"), nil
	})
	if !errors.Is(err, ErrEncoding) {
		t.Fatalf("Fetch() error = %v, want ErrEncoding", err)
	}
}

func TestLoader_InvalidArguments(t *testing.T) {
	produce := func(context.Context) ([]byte, error) { return []byte("v"), nil }

	if _, err := NewLoader(nil).Fetch(context.Background(), "k", Options{}, produce); !errors.Is(err, ErrNilStore) {
		t.Errorf("nil store: %v, want ErrNilStore", err)
	}

	store := &failingStore{}
	loader := NewLoader(store)

	if _, err := loader.Fetch(context.Background(), "", Options{}, produce); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty key: %v, want ErrInvalidKey", err)
	}
	if _, err := loader.Fetch(context.Background(), "k", Options{}, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil producer: %v, want ErrInvalidArgument", err)
	}
	if store.gets.Load() != 0 || store.writes.Load() != 0 {
		t.Errorf("store touched on invalid input: gets=%d writes=%d", store.gets.Load(), store.writes.Load())
	}
}

func TestLoader_ConcurrentMissesEachProduceByDefault(t *testing.T) {
	loader := NewLoader(NewMemoryStore())

	const n = 8
	var calls atomic.Int32
	gate := make(chan struct{})
	var ready sync.WaitGroup
	ready.Add(n)

	produce := func(context.Context) ([]byte, error) {
		calls.Add(1)
		ready.Done()
		<-gate
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = loader.Fetch(context.Background(), "k", Options{ExpiresIn: time.Minute}, produce)
		}()
	}
	ready.Wait()
	close(gate)
	wg.Wait()

	if calls.Load() != n {
		t.Errorf("producer calls = %d, want %d", calls.Load(), n)
	}
}

func TestLoader_SingleflightCollapsesMisses(t *testing.T) {
	loader := NewLoader(NewMemoryStore(), WithSingleflight())

	const n = 8
	var calls atomic.Int32
	gate := make(chan struct{})

	produce := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-gate
		return []byte("v"), nil
	}

	results := make(chan []byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := loader.Fetch(context.Background(), "k", Options{ExpiresIn: time.Minute}, produce)
			if err != nil {
				t.Errorf("Fetch() error = %v", err)
			}
			results <- v
		}()
	}

	// Let callers pile up behind the first producer run.
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(results)

	if calls.Load() != 1 {
		t.Errorf("producer calls = %d, want 1", calls.Load())
	}
	for v := range results {
		if string(v) != "v" {
			t.Errorf("result = %q, want v", v)
		}
	}
}

func TestLoader_SingleflightSurvivesFirstCallerCancel(t *testing.T) {
	loader := NewLoader(NewMemoryStore(), WithSingleflight())

	started := make(chan struct{})
	gate := make(chan struct{})
	produce := func(ctx context.Context) ([]byte, error) {
		close(started)
		<-gate
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []byte("v"), nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := loader.Fetch(firstCtx, "k", Options{ExpiresIn: time.Minute}, produce)
		first <- err
	}()
	<-started

	second := make(chan []byte, 1)
	go func() {
		v, err := loader.Fetch(context.Background(), "k", Options{ExpiresIn: time.Minute}, produce)
		if err != nil {
			t.Errorf("second Fetch() error = %v", err)
		}
		second <- v
	}()

	// Let the second caller join the shared run before the first leaves.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(gate)

	if err := <-first; err != nil {
		t.Errorf("first Fetch() error = %v, want shared result", err)
	}
	if v := <-second; string(v) != "v" {
		t.Errorf("second Fetch() = %q, want v", v)
	}
	if v, ok := loader.Store().Get(context.Background(), "k"); !ok || string(v) != "v" {
		t.Errorf("stored = (%q, %v), want (v, true)", v, ok)
	}
}

func TestJSONProducer(t *testing.T) {
	type taxon struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	produce := JSONProducer(func(context.Context) ([]taxon, error) {
		return []taxon{{ID: 1, Name: "Cached Taxon"}}, nil
	})

	got, err := produce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `[{"id":1,"name":"Cached Taxon"}]` {
		t.Errorf("JSONProducer() = %s", got)
	}

	boom := errors.New("boom")
	_, err = JSONProducer(func(context.Context) (int, error) { return 0, boom })(context.Background())
	if !errors.Is(err, boom) || errors.Is(err, ErrEncoding) {
		t.Errorf("producer error = %v, want passthrough", err)
	}
}

func TestLoader_Store(t *testing.T) {
	store := NewMemoryStore()
	if NewLoader(store).Store() != store {
		t.Fatal("Store() did not return the wrapped store")
	}
}
