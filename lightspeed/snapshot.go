package lightspeed

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Resource names a list endpoint Snapshot can fetch.
type Resource string

// Known resources.
const (
	ResourceProducts     Resource = "products"
	ResourceSales        Resource = "sales"
	ResourceCustomers    Resource = "customers"
	ResourceConsignments Resource = "consignments"
	ResourceInventory    Resource = "inventory"
	ResourceOutlets      Resource = "outlets"
	ResourceSuppliers    Resource = "suppliers"
	ResourceUsers        Resource = "users"
	ResourceBrands       Resource = "brands"
	ResourceProductTypes Resource = "product_types"
)

var knownResources = []Resource{
	ResourceProducts, ResourceSales, ResourceCustomers, ResourceConsignments,
	ResourceInventory, ResourceOutlets, ResourceSuppliers, ResourceUsers,
	ResourceBrands, ResourceProductTypes,
}

// Resources lists every resource Snapshot accepts.
func Resources() []Resource {
	return slices.Clone(knownResources)
}

// DefaultSnapshotResources are the reference-data resources fetched when
// Snapshot is called without arguments.
func DefaultSnapshotResources() []Resource {
	return []Resource{ResourceOutlets, ResourceSuppliers, ResourceBrands, ResourceProductTypes, ResourceUsers}
}

// ParseResource accepts a resource name case-insensitively; "product-types"
// is accepted for product_types.
func ParseResource(name string) (Resource, error) {
	r := Resource(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	if !slices.Contains(knownResources, r) {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return r, nil
}

// ParseResources parses names, dropping duplicates.
func ParseResources(names []string) ([]Resource, error) {
	out := make([]Resource, 0, len(names))
	for _, name := range names {
		r, err := ParseResource(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Snapshot fetches every page of each resource concurrently, at most
// MaxConcurrent at a time. The first failure cancels the remaining fetches and
// is returned.
func (c *Client) Snapshot(ctx context.Context, resources ...Resource) (map[Resource][]json.RawMessage, error) {
	if len(resources) == 0 {
		resources = DefaultSnapshotResources()
	}
	unique := make([]Resource, 0, len(resources))
	for _, r := range resources {
		if !slices.Contains(knownResources, r) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownResource, r)
		}
		if !slices.Contains(unique, r) {
			unique = append(unique, r)
		}
	}

	ctx, span := c.tracer.Start(ctx, "lightspeed.Snapshot")
	defer span.End()

	start := time.Now()
	var (
		mu      sync.Mutex
		results = make(map[Resource][]json.RawMessage, len(unique))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for _, r := range unique {
		g.Go(func() error {
			records, err := c.FetchPaginated(gctx, string(r), nil, nil)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", r, err)
			}
			mu.Lock()
			results[r] = records
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error().Err(err).Int("resources", len(unique)).Msg("Lightspeed snapshot failed")
		return nil, err
	}

	total := 0
	for _, records := range results {
		total += len(records)
	}
	span.SetAttributes(
		attribute.Int("lightspeed.resources", len(results)),
		attribute.Int("lightspeed.records", total),
	)
	span.SetStatus(codes.Ok, "")
	c.logger.Info().
		Int("resources", len(results)).
		Int("records", total).
		Dur("elapsed", time.Since(start)).
		Msg("Lightspeed snapshot complete")
	return results, nil
}
