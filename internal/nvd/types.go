package nvd

// Wire types for the NVD CVE API 2.0 response. Only the fields the monitor
// reads are declared; the decoder ignores the rest.

type apiResponse struct {
	ResultsPerPage  int             `json:"resultsPerPage"`
	TotalResults    int             `json:"totalResults"`
	Vulnerabilities []vulnerability `json:"vulnerabilities"`
}

type vulnerability struct {
	CVE cveItem `json:"cve"`
}

type cveItem struct {
	ID           string        `json:"id"`
	Published    string        `json:"published"`
	Descriptions []description `json:"descriptions"`
	Metrics      metrics       `json:"metrics"`
}

type description struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

// metrics carries the CVSS scheme variants. Newer schemes are preferred when
// deriving a single base score.
type metrics struct {
	CVSSMetricV31 []cvssMetric `json:"cvssMetricV31"`
	CVSSMetricV30 []cvssMetric `json:"cvssMetricV30"`
	CVSSMetricV2  []cvssMetric `json:"cvssMetricV2"`
}

type cvssMetric struct {
	CVSSData cvssData `json:"cvssData"`

	// BaseSeverity lives at the metric level in the V2 scheme.
	BaseSeverity string `json:"baseSeverity"`
}

type cvssData struct {
	BaseScore    float64 `json:"baseScore"`
	BaseSeverity string  `json:"baseSeverity"`
}

// baseScore derives a single numeric score plus severity tag, walking schemes
// newest first. ok is false when no scheme carries a score.
func (m metrics) baseScore() (score float64, severity string, ok bool) {
	for _, group := range [][]cvssMetric{m.CVSSMetricV31, m.CVSSMetricV30, m.CVSSMetricV2} {
		if len(group) == 0 {
			continue
		}
		entry := group[0]
		severity = entry.CVSSData.BaseSeverity
		if severity == "" {
			severity = entry.BaseSeverity
		}
		return entry.CVSSData.BaseScore, severity, true
	}
	return 0, "", false
}
