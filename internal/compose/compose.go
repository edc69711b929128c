// Package compose renders announcement batches into channel text.
//
// The layout is fixed so ticks with identical input produce identical
// output: one block per asset with news, each block a header line, one line
// per advisory, and a link line. Everything here is pure; sending is the
// caller's job.
package compose

import (
	"fmt"
	"strings"

	"cvewatch/internal/advisory"
)

// DefaultBroadcastMarker is the wide-mention token prefixed to batches that
// contain a new critical advisory.
const DefaultBroadcastMarker = "@everyone"

const timeLayout = "2006-01-02 / 15:04 UTC"

// Batch is one tick's worth of new advisories. Built fresh each tick, never
// persisted.
type Batch struct {
	Items []advisory.Record
}

// HasCritical reports whether any record in the batch is critical.
func (b Batch) HasCritical() bool {
	for _, r := range b.Items {
		if r.Critical {
			return true
		}
	}
	return false
}

// Block is one asset's announcement. Callers send blocks individually so a
// large tick never exceeds the channel's message size limit.
type Block struct {
	Asset    string
	Text     string
	Critical bool
}

// Composer renders batches. AssetOrder fixes block ordering to the
// configured asset sequence; assets absent from the order sort last in
// first-seen order.
type Composer struct {
	Marker     string
	AssetOrder []string
}

func New(marker string, assetOrder []string) Composer {
	if marker == "" {
		marker = DefaultBroadcastMarker
	}
	return Composer{Marker: marker, AssetOrder: assetOrder}
}

// Build groups the batch into per-asset blocks in configured asset order.
// Assets with no new advisories are omitted, not padded.
func (c Composer) Build(b Batch) []Block {
	byAsset := make(map[string][]advisory.Record)
	var firstSeen []string
	for _, r := range b.Items {
		if _, ok := byAsset[r.Asset]; !ok {
			firstSeen = append(firstSeen, r.Asset)
		}
		byAsset[r.Asset] = append(byAsset[r.Asset], r)
	}

	var blocks []Block
	emit := func(asset string) {
		records, ok := byAsset[asset]
		if !ok {
			return
		}
		delete(byAsset, asset)
		blocks = append(blocks, c.block(asset, records))
	}
	for _, asset := range c.AssetOrder {
		emit(asset)
	}
	for _, asset := range firstSeen {
		emit(asset)
	}
	return blocks
}

func (c Composer) block(asset string, records []advisory.Record) Block {
	var sb strings.Builder
	critical := false

	fmt.Fprintf(&sb, "┣ %s ┩\n", asset)
	for _, r := range records {
		sb.WriteString(r.ID)
		if r.Critical {
			critical = true
			sb.WriteString(" (CRITICAL)")
		}
		sb.WriteString(" / ")
		sb.WriteString(r.PublishedAt.UTC().Format(timeLayout))
		sb.WriteString("\n")
	}
	for _, r := range records {
		if r.DetailURL != "" {
			sb.WriteString("🔗 ")
			sb.WriteString(r.DetailURL)
			sb.WriteString("\n")
		}
	}

	return Block{Asset: asset, Text: strings.TrimRight(sb.String(), "\n"), Critical: critical}
}

// Render joins all blocks into a single message, prefixed with the
// broadcast marker when the batch carries a critical advisory. Useful for
// small batches; large ones should send Build's blocks one by one.
func (c Composer) Render(b Batch) string {
	blocks := c.Build(b)
	if len(blocks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(blocks)+1)
	if b.HasCritical() {
		parts = append(parts, c.Marker)
	}
	for _, blk := range blocks {
		parts = append(parts, blk.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Prefix returns the text a critical block must carry so retention can
// recognize it: the broadcast marker followed by the block body.
func (c Composer) Prefix(blk Block) string {
	if !blk.Critical {
		return blk.Text
	}
	return c.Marker + "\n" + blk.Text
}
