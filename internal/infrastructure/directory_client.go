package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/interfaces"
)

const (
	defaultPostType   = "pacientes"
	defaultPhoneField = "telefone"
	maxDirectoryBody  = 2 << 20
)

// WordPressDirectory looks contacts up through the WordPress REST API of an association,
// with ACF custom fields. Credentials come from the association, so one client serves
// every tenant.
type WordPressDirectory struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

var _ interfaces.Directory = (*WordPressDirectory)(nil)

func NewWordPressDirectory(timeout time.Duration, logger *slog.Logger, metrics *Metrics) *WordPressDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &WordPressDirectory{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// FindByPhone queries one variant at a time and returns the first match. Every failure is
// normalized to ErrDirectoryNotFound, ErrDirectoryUnavailable or ErrDirectoryUnauthorized
// (the latter also matches ErrDirectoryUnavailable).
func (d *WordPressDirectory) FindByPhone(ctx context.Context, association *entities.Association, variants []string) (*entities.DirectoryRecord, error) {
	cfg := association.Directory
	if !cfg.Enabled() {
		d.metrics.DirectoryLookup("not_configured")
		return nil, entities.ErrDirectoryNotFound
	}

	for _, variant := range variants {
		records, err := d.query(ctx, cfg, variant)
		if err != nil {
			switch {
			case errors.Is(err, entities.ErrDirectoryUnauthorized):
				d.metrics.DirectoryLookup("unauthorized")
			default:
				d.metrics.DirectoryLookup("unavailable")
			}
			return nil, err
		}
		if len(records) == 0 {
			continue
		}
		if len(records) > 1 {
			d.logger.Warn("directory returned several candidates, using the first",
				"association", association.Subdomain, "variant", variant, "candidates", len(records))
		}
		rec := records[0]
		rec.MatchedVariant = variant
		d.metrics.DirectoryLookup("found")
		return &rec, nil
	}

	d.metrics.DirectoryLookup("not_found")
	return nil, entities.ErrDirectoryNotFound
}

func (d *WordPressDirectory) query(ctx context.Context, cfg entities.DirectoryConfig, variant string) ([]entities.DirectoryRecord, error) {
	postType := cfg.PostType
	if postType == "" {
		postType = defaultPostType
	}
	phoneField := cfg.PhoneField
	if phoneField == "" {
		phoneField = defaultPhoneField
	}

	q := url.Values{}
	q.Set(phoneField, variant)
	q.Set("acf_format", "standard")
	q.Set("per_page", "5")
	endpoint := fmt.Sprintf("%s/wp-json/wp/v2/%s?%s", strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(postType), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrDirectoryUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if cfg.Username != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %w", entities.ErrDirectoryUnavailable, entities.ErrDirectoryUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		// the collection route answers [] for no match; 404 means the route itself is missing
		return nil, fmt.Errorf("%w: route %s not found", entities.ErrDirectoryUnavailable, postType)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d", entities.ErrDirectoryUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDirectoryBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", entities.ErrDirectoryUnavailable, err)
	}
	return decodeDirectoryBody(body)
}

// decodeDirectoryBody accepts a JSON array of posts or a single post object.
func decodeDirectoryBody(body []byte) ([]entities.DirectoryRecord, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	var raws []map[string]interface{}
	if body[0] == '[' {
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", entities.ErrDirectoryUnavailable, err)
		}
	} else {
		var one map[string]interface{}
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", entities.ErrDirectoryUnavailable, err)
		}
		raws = append(raws, one)
	}

	records := make([]entities.DirectoryRecord, 0, len(raws))
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		records = append(records, toDirectoryRecord(raw))
	}
	return records, nil
}

// toDirectoryRecord flattens a post: top-level keys first, ACF fields on top.
func toDirectoryRecord(raw map[string]interface{}) entities.DirectoryRecord {
	rec := entities.DirectoryRecord{Fields: make(map[string]interface{}, len(raw))}

	switch id := raw["id"].(type) {
	case float64:
		rec.ExternalID = fmt.Sprintf("%.0f", id)
	case string:
		rec.ExternalID = id
	}

	switch title := raw["title"].(type) {
	case string:
		rec.Title = title
	case map[string]interface{}:
		if rendered, ok := title["rendered"].(string); ok {
			rec.Title = rendered
		}
	}

	for k, v := range raw {
		if k == "acf" || k == "_links" {
			continue
		}
		rec.Fields[k] = v
	}
	if acf, ok := raw["acf"].(map[string]interface{}); ok {
		for k, v := range acf {
			rec.Fields[k] = v
		}
	}
	return rec
}
