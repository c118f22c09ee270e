package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jonwraymond/viewcache/cache"
	"github.com/jonwraymond/viewcache/observe"
	"github.com/jonwraymond/viewcache/resilience"
)

// Operation names used to label cache telemetry.
const (
	OpTaxons     = "taxons"
	OpProperties = "properties"
)

// ErrInvalidID is returned for a missing or non-positive id.
var ErrInvalidID = errors.New("storefront: invalid id")

// Config tunes the API.
type Config struct {
	// Expiry is how long a rendered listing stays fresh.
	// Default: cache.FiltersExpiry
	Expiry time.Duration

	// ProducerTimeout bounds one catalog query.
	// Default: 5s
	ProducerTimeout time.Duration

	// MaxConcurrentProducers caps catalog queries in flight. Callers over
	// the cap get 503.
	// Default: 32
	MaxConcurrentProducers int
}

// API serves cached filter listings.
type API struct {
	catalog Catalog
	loader  *cache.Loader
	keyer   *cache.Keyer
	config  Config
	exec    *resilience.Executor
	logger  observe.Logger
}

// NewAPI creates the listing API. A nil keyer uses the default namespace; a
// nil logger discards.
func NewAPI(catalog Catalog, loader *cache.Loader, keyer *cache.Keyer, config Config, logger observe.Logger) *API {
	if config.Expiry <= 0 {
		config.Expiry = cache.FiltersExpiry
	}
	if config.ProducerTimeout <= 0 {
		config.ProducerTimeout = 5 * time.Second
	}
	if config.MaxConcurrentProducers <= 0 {
		config.MaxConcurrentProducers = 32
	}
	if keyer == nil {
		keyer = cache.NewKeyer("")
	}
	if logger == nil {
		logger = observe.NewNopLogger()
	}

	return &API{
		catalog: catalog,
		loader:  loader,
		keyer:   keyer,
		config:  config,
		exec: resilience.NewExecutor(
			resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
				MaxConcurrent: config.MaxConcurrentProducers,
				MaxWait:       config.ProducerTimeout,
			})),
			resilience.WithTimeout(config.ProducerTimeout),
		),
		logger: logger,
	}
}

// Routes returns the listing endpoints:
//
//	GET /api/order_cycles/{orderCycleID}/taxons?distributor=N
//	GET /api/order_cycles/{orderCycleID}/properties?distributor=N
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	a.Mount(r)
	return r
}

// Mount registers the listing endpoints on r.
func (a *API) Mount(r chi.Router) {
	r.Route("/api/order_cycles/{orderCycleID}", func(r chi.Router) {
		r.Get("/taxons", a.serve(OpTaxons, func(oc, dist int64) cache.ProducerFunc {
			return cache.JSONProducer(func(ctx context.Context) ([]Taxon, error) {
				return a.catalog.Taxons(ctx, oc, dist)
			})
		}))
		r.Get("/properties", a.serve(OpProperties, func(oc, dist int64) cache.ProducerFunc {
			return cache.JSONProducer(func(ctx context.Context) ([]Property, error) {
				return a.catalog.Properties(ctx, oc, dist)
			})
		}))
	})
}

type producerFor func(orderCycleID, distributorID int64) cache.ProducerFunc

func (a *API) serve(name string, producer producerFor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		oc, err := parseID(chi.URLParam(r, "orderCycleID"))
		if err != nil {
			http.Error(w, "order cycle: "+err.Error(), http.StatusBadRequest)
			return
		}
		dist, err := parseID(r.URL.Query().Get("distributor"))
		if err != nil {
			http.Error(w, "distributor: "+err.Error(), http.StatusBadRequest)
			return
		}

		key, err := a.keyer.Derive(r.Host, r.URL.Path, map[string]string{
			"distributor": strconv.FormatInt(dist, 10),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		body, err := a.loader.FetchNamed(ctx, name, key, cache.Options{ExpiresIn: a.config.Expiry}, a.guard(producer(oc, dist)))
		if err != nil {
			a.logger.Error(ctx, "listing failed",
				observe.Field{Key: "op", Value: name},
				observe.Field{Key: "cache.key", Value: key},
				observe.Field{Key: "error", Value: err.Error()},
			)
			code := http.StatusInternalServerError
			if errors.Is(err, resilience.ErrBulkheadFull) {
				code = http.StatusServiceUnavailable
			}
			http.Error(w, http.StatusText(code), code)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// guard runs produce through the producer bulkhead and timeout.
func (a *API) guard(produce cache.ProducerFunc) cache.ProducerFunc {
	return func(ctx context.Context) ([]byte, error) {
		var out []byte
		err := a.exec.Execute(ctx, func(ctx context.Context) error {
			v, err := produce(ctx)
			out = v
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}
