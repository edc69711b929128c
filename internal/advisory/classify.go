package advisory

import "strings"

// DefaultCriticalThreshold is the CVSS base score at which an advisory is
// treated as critical (0-10 scale).
const DefaultCriticalThreshold = 9.0

// Classifier tags records as critical. It is pure: no I/O, deterministic
// for identical input.
type Classifier struct {
	Threshold float64
}

func NewClassifier(threshold float64) Classifier {
	if threshold <= 0 {
		threshold = DefaultCriticalThreshold
	}
	return Classifier{Threshold: threshold}
}

// Classify returns the record with Critical set.
//
// A numeric score wins when present. Without one, an explicit "critical"
// severity tag from the source counts; absence of any signal defaults to
// non-critical so a missing score never blocks notification.
func (c Classifier) Classify(r Record) Record {
	switch {
	case r.Score != nil:
		r.Critical = *r.Score >= c.Threshold
	case r.SeverityTag != "":
		r.Critical = strings.EqualFold(strings.TrimSpace(r.SeverityTag), "critical")
	default:
		r.Critical = false
	}
	return r
}
