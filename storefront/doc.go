// Package storefront serves the shop filter listings that viewcache keeps
// warm: the taxons and properties available in an order cycle for one
// distributor.
//
// Each response body is cached under a key derived from the request host,
// path and distributor, and stays fresh for cache.FiltersExpiry. Changes to
// the underlying Catalog are not observed; a listing shows new data only
// after its entry goes stale.
package storefront
