package lightspeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	paramPageSize = "page_size"
	paramAfter    = "after"
)

// PageFunc receives each page as it arrives. Returning an error stops the walk.
type PageFunc func(records []json.RawMessage) error

// FetchPaginated walks a list endpoint with cursor pagination. Each request
// carries page_size and, after the first page, after=<version.max of the
// previous page>. The walk ends on an empty page, a missing cursor or a cursor
// that does not advance. When fn is nil the records are accumulated and
// returned; otherwise they are streamed to fn and the result is nil.
func (c *Client) FetchPaginated(ctx context.Context, endpoint string, params url.Values, fn PageFunc) ([]json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "lightspeed.FetchPaginated")
	defer span.End()
	span.SetAttributes(attribute.String("lightspeed.endpoint", endpoint))

	query := cloneValues(params)
	if query.Get(paramPageSize) == "" {
		query.Set(paramPageSize, strconv.Itoa(c.pageSize))
	}
	after := query.Get(paramAfter)

	var (
		all     []json.RawMessage
		pages   int
		records int
	)
	for {
		if after != "" {
			query.Set(paramAfter, after)
		}

		page, err := listPage[json.RawMessage](ctx, c, endpoint, query)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		pages++
		records += len(page.Data)

		if fn != nil {
			if err := fn(page.Data); err != nil {
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("lightspeed: %s page %d: %w", endpoint, pages, err)
			}
		} else {
			all = append(all, page.Data...)
		}

		next := nextCursor(page)
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("page", pages).
			Int("count", len(page.Data)).
			Str("after", after).
			Str("next", next).
			Msg("Lightspeed page fetched")

		if len(page.Data) == 0 || next == "" {
			break
		}
		if next == after {
			c.logger.Warn().
				Str("endpoint", endpoint).
				Str("after", after).
				Msg("Lightspeed cursor did not advance, stopping pagination")
			break
		}
		after = next
	}

	span.SetAttributes(
		attribute.Int("lightspeed.pages", pages),
		attribute.Int("lightspeed.records", records),
	)
	span.SetStatus(codes.Ok, "")
	return all, nil
}

// FetchAll walks endpoint like FetchPaginated and decodes every record into T.
func FetchAll[T any](ctx context.Context, c *Client, endpoint string, params url.Values) ([]T, error) {
	var out []T
	_, err := c.FetchPaginated(ctx, endpoint, params, func(records []json.RawMessage) error {
		for _, raw := range records {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func nextCursor(page *rawPage) string {
	if page.Version == nil || page.Version.Max <= 0 {
		return ""
	}
	return strconv.FormatInt(page.Version.Max, 10)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
