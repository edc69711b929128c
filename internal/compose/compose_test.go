package compose

import (
	"strings"
	"testing"
	"time"

	"cvewatch/internal/advisory"
)

func rec(id, asset string, published time.Time, critical bool) advisory.Record {
	return advisory.Record{
		ID:          id,
		Asset:       asset,
		PublishedAt: published,
		DetailURL:   "https://nvd.nist.gov/vuln/detail/" + id,
		Critical:    critical,
	}
}

func TestBuildLayout(t *testing.T) {
	t.Parallel()
	published := time.Date(2025, 8, 28, 14, 23, 0, 0, time.UTC)
	c := New("", []string{"Red Hat Enterprise Linux 9"})

	blocks := c.Build(Batch{Items: []advisory.Record{
		rec("CVE-2025-12345", "Red Hat Enterprise Linux 9", published, false),
	}})
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	want := "┣ Red Hat Enterprise Linux 9 ┩\n" +
		"CVE-2025-12345 / 2025-08-28 / 14:23 UTC\n" +
		"🔗 https://nvd.nist.gov/vuln/detail/CVE-2025-12345"
	if blocks[0].Text != want {
		t.Fatalf("block text:\n%s\nwant:\n%s", blocks[0].Text, want)
	}
}

func TestBuildOmitsQuietAssetsAndKeepsOrder(t *testing.T) {
	t.Parallel()
	published := time.Date(2025, 8, 27, 10, 12, 0, 0, time.UTC)
	order := []string{"Red Hat Enterprise Linux 9", "Oracle Database 19c", "Ubuntu 22.04"}
	c := New("", order)

	blocks := c.Build(Batch{Items: []advisory.Record{
		rec("CVE-2025-2", "Ubuntu 22.04", published, false),
		rec("CVE-2025-1", "Oracle Database 19c", published, false),
	}})
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Asset != "Oracle Database 19c" || blocks[1].Asset != "Ubuntu 22.04" {
		t.Fatalf("blocks out of configured order: %s, %s", blocks[0].Asset, blocks[1].Asset)
	}
}

func TestBuildDeterministic(t *testing.T) {
	t.Parallel()
	published := time.Date(2025, 8, 27, 10, 12, 0, 0, time.UTC)
	c := New("", nil)
	batch := Batch{Items: []advisory.Record{
		rec("CVE-2025-1", "Oracle Database 19c", published, true),
		rec("CVE-2025-2", "Ubuntu 22.04", published, false),
	}}
	if c.Render(batch) != c.Render(batch) {
		t.Fatal("Render must be deterministic")
	}
}

func TestRenderBroadcastMarker(t *testing.T) {
	t.Parallel()
	published := time.Date(2025, 8, 28, 14, 23, 0, 0, time.UTC)
	c := New("@everyone", nil)

	critical := Batch{Items: []advisory.Record{rec("CVE-2025-1", "Ubuntu 22.04", published, true)}}
	out := c.Render(critical)
	if !strings.HasPrefix(out, "@everyone") {
		t.Fatalf("critical batch must lead with the marker, got:\n%s", out)
	}
	if !strings.Contains(out, "CVE-2025-1 (CRITICAL) / ") {
		t.Fatalf("critical line missing tag:\n%s", out)
	}

	quiet := Batch{Items: []advisory.Record{rec("CVE-2025-2", "Ubuntu 22.04", published, false)}}
	out = c.Render(quiet)
	if strings.Contains(out, "@everyone") {
		t.Fatalf("non-critical batch must not carry the marker:\n%s", out)
	}
}

func TestRenderEmptyBatch(t *testing.T) {
	t.Parallel()
	c := New("", nil)
	if got := c.Render(Batch{}); got != "" {
		t.Fatalf("empty batch must render empty, got %q", got)
	}
}

func TestPrefixMarksCriticalBlocks(t *testing.T) {
	t.Parallel()
	published := time.Date(2025, 8, 28, 14, 23, 0, 0, time.UTC)
	c := New("@everyone", nil)
	blocks := c.Build(Batch{Items: []advisory.Record{
		rec("CVE-2025-1", "Ubuntu 22.04", published, true),
		rec("CVE-2025-2", "Mozilla Firefox", published, false),
	}})
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	for _, blk := range blocks {
		text := c.Prefix(blk)
		if blk.Critical && !strings.HasPrefix(text, "@everyone") {
			t.Fatalf("critical block missing marker:\n%s", text)
		}
		if !blk.Critical && strings.Contains(text, "@everyone") {
			t.Fatalf("non-critical block must not carry marker:\n%s", text)
		}
	}
}
