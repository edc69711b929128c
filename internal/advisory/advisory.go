package advisory

import "time"

// Asset is one monitored product. The asset list is fixed at startup;
// identity is the name.
type Asset struct {
	// Name is the display name used in announcements and as the key in
	// persisted state.
	Name string

	// CPE is a structured platform identifier (e.g.
	// "cpe:2.3:o:canonical:ubuntu_linux:22.04:*:*:*:*:*:*:*"). When set it is
	// preferred over Keywords: an exact platform match eliminates false
	// positives from unrelated products sharing a keyword.
	CPE string

	// Keywords is the free-text catalog query used when no CPE is configured.
	Keywords string

	// MaxTracked bounds how many seen entries are retained for this asset.
	MaxTracked int
}

// Query returns the catalog descriptor for the asset, preferring the
// structured identifier.
func (a Asset) Query() (value string, structured bool) {
	if a.CPE != "" {
		return a.CPE, true
	}
	return a.Keywords, false
}

// Record is one normalized advisory. Immutable once classified.
type Record struct {
	ID          string
	Asset       string
	PublishedAt time.Time
	Summary     string
	DetailURL   string

	// Score is the numeric CVSS base score, nil when the source exposes no
	// numeric metric for this advisory.
	Score *float64

	// SeverityTag is the source's textual severity ("CRITICAL", "HIGH", ...),
	// empty when absent. Used as the classification fallback.
	SeverityTag string

	Critical bool
}
