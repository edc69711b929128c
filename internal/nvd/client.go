package nvd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"cvewatch/internal/advisory"
	logx "cvewatch/pkg/logx"
)

// ErrSourceUnavailable marks network or decode failures reaching the
// advisory catalog. Callers match it with errors.Is and treat the asset as
// having no results this tick.
var ErrSourceUnavailable = errors.New("advisory source unavailable")

const (
	// DefaultBaseURL is the NVD CVE API 2.0 endpoint.
	DefaultBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

	// DefaultPageSize bounds how many records a single fetch scans. The
	// source is recency-biased, not exhaustive.
	DefaultPageSize = 20

	// DefaultMaxAge drops advisories published too long ago to be worth
	// announcing.
	DefaultMaxAge = 3 * 365 * 24 * time.Hour

	detailURLPrefix = "https://nvd.nist.gov/vuln/detail/"
)

// NVD timestamps come without a zone suffix and are UTC.
var publishedLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

type Config struct {
	BaseURL  string
	APIKey   string
	PageSize int
	Timeout  time.Duration

	// MaxAge filters out advisories older than this at fetch time.
	// Zero means DefaultMaxAge; negative disables the cutoff.
	MaxAge time.Duration
}

// Client queries the NVD catalog for candidate advisories. It is read-only
// and never touches seen state.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
	now  func() time.Time
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
		now:  time.Now,
	}
}

// Fetch returns normalized records for the asset, newest first, severity
// unset (classification happens downstream). Failures wrap
// ErrSourceUnavailable.
func (c *Client) Fetch(ctx context.Context, asset advisory.Asset) ([]advisory.Record, error) {
	query, structured := asset.Query()
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("asset %q has no query descriptor", asset.Name)
	}

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrSourceUnavailable, err)
	}
	q := u.Query()
	if structured {
		q.Set("cpeName", query)
	} else {
		q.Set("keywordSearch", query)
	}
	q.Set("resultsPerPage", strconv.Itoa(c.cfg.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("apiKey", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: catalog returned %s", ErrSourceUnavailable, resp.Status)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSourceUnavailable, err)
	}

	cutoff := time.Time{}
	if c.cfg.MaxAge > 0 {
		cutoff = c.now().Add(-c.cfg.MaxAge)
	}

	records := make([]advisory.Record, 0, len(body.Vulnerabilities))
	for _, v := range body.Vulnerabilities {
		rec, ok := c.normalize(asset.Name, v.CVE, cutoff)
		if !ok {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].PublishedAt.After(records[j].PublishedAt)
	})

	c.log.Debug("catalog fetch",
		logx.String("asset", asset.Name),
		logx.Bool("structured", structured),
		logx.Int("total", body.TotalResults),
		logx.Int("kept", len(records)))
	return records, nil
}

func (c *Client) normalize(assetName string, item cveItem, cutoff time.Time) (advisory.Record, bool) {
	if item.ID == "" {
		return advisory.Record{}, false
	}
	published, err := parsePublished(item.Published)
	if err != nil {
		c.log.Warn("unparseable publish timestamp",
			logx.String("cve", item.ID), logx.String("published", item.Published))
		return advisory.Record{}, false
	}
	if !cutoff.IsZero() && published.Before(cutoff) {
		return advisory.Record{}, false
	}

	rec := advisory.Record{
		ID:          item.ID,
		Asset:       assetName,
		PublishedAt: published,
		Summary:     englishDescription(item.Descriptions),
		DetailURL:   detailURLPrefix + item.ID,
	}
	if score, severity, ok := item.Metrics.baseScore(); ok {
		s := score
		rec.Score = &s
		rec.SeverityTag = severity
	}
	return rec, true
}

func parsePublished(raw string) (time.Time, error) {
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func englishDescription(descs []description) string {
	for _, d := range descs {
		if d.Lang == "en" {
			return d.Value
		}
	}
	if len(descs) > 0 {
		return descs[0].Value
	}
	return ""
}
