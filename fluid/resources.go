package fluid

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-droplet/core"
)

type ListResourcesRequest struct {
	ShopDomain          string
	AuthenticationToken string
	Kind                core.ResourceKind
	Page                int
	PerPage             int
}

// ResourcePage is one page of company data. Items stay as raw maps; the sync
// pipeline feeds them through the same upsert path resource webhooks use.
type ResourcePage struct {
	Items      []map[string]any
	Page       int
	TotalPages int
	HasMore    bool
}

// ListResources reads one page of company data for a mirrored resource kind.
// The platform nests items under the plural resource key with a "data"
// fallback; pagination comes from the meta object when present.
func (c *Client) ListResources(ctx context.Context, req ListResourcesRequest) (ResourcePage, error) {
	if c == nil || c.http == nil {
		return ResourcePage{}, fluidInternal("fluid: client requires an http doer", nil)
	}
	kind, err := core.ParseResourceKind(string(req.Kind))
	if err != nil {
		return ResourcePage{}, fluidBadInput("fluid: resource kind is required", map[string]any{"kind": string(req.Kind)})
	}
	token := strings.TrimSpace(req.AuthenticationToken)
	if token == "" {
		return ResourcePage{}, fluidBadInput("fluid: authentication token is required", nil)
	}

	query := map[string]string{}
	if req.Page > 0 {
		query["page"] = strconv.Itoa(req.Page)
	}
	if req.PerPage > 0 {
		query["per_page"] = strconv.Itoa(req.PerPage)
	}

	pluralKind := string(kind) + "s"
	res, err := c.call(ctx, platformCall{
		Method:     http.MethodGet,
		ShopDomain: req.ShopDomain,
		Path:       "/api/company/" + pluralKind,
		Query:      query,
		Token:      token,
		Bucket:     pluralKind,
	})
	if err != nil {
		return ResourcePage{}, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return ResourcePage{}, statusError(
			pluralKind+" read",
			res.StatusCode,
			core.ServiceErrorPlatformUnavailable,
			map[string]any{"kind": string(kind)},
		)
	}

	items, meta, err := decodeResourceList(res.Body, pluralKind)
	if err != nil {
		return ResourcePage{}, err
	}

	page := pageFromMeta(meta, req.Page)
	totalPages := totalPagesFromMeta(meta)
	return ResourcePage{
		Items:      items,
		Page:       page,
		TotalPages: totalPages,
		HasMore:    hasMorePages(page, totalPages, len(items), req.PerPage),
	}, nil
}

func decodeResourceList(body []byte, pluralKind string) ([]map[string]any, map[string]any, error) {
	var envelope map[string]any
	if err := decodeResponse(body, &envelope); err != nil {
		var rows []map[string]any
		if arrayErr := decodeResponse(body, &rows); arrayErr == nil {
			return rows, nil, nil
		}
		return nil, nil, err
	}

	meta, _ := envelope["meta"].(map[string]any)
	if items, ok := readItemList(envelope[pluralKind]); ok {
		return items, meta, nil
	}
	if items, ok := readItemList(envelope["data"]); ok {
		return items, meta, nil
	}
	return []map[string]any{}, meta, nil
}

func readItemList(value any) ([]map[string]any, bool) {
	raw, ok := value.([]any)
	if !ok {
		return nil, false
	}
	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if item, ok := entry.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items, true
}

func pageFromMeta(meta map[string]any, requested int) int {
	if page := readInt(meta["current_page"]); page > 0 {
		return page
	}
	if page := readInt(meta["page"]); page > 0 {
		return page
	}
	if requested > 0 {
		return requested
	}
	return 1
}

func totalPagesFromMeta(meta map[string]any) int {
	if total := readInt(meta["total_pages"]); total > 0 {
		return total
	}
	return 0
}

// hasMorePages prefers the platform's own pagination meta; without it a full
// page is taken as a hint that another one may follow.
func hasMorePages(page int, totalPages int, itemCount int, perPage int) bool {
	if totalPages > 0 {
		return page < totalPages
	}
	return perPage > 0 && itemCount == perPage
}

func readInt(value any) int {
	switch typed := value.(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
