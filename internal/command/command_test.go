package command

import (
	"testing"
	"time"

	logx "cvewatch/pkg/logx"
)

func TestFormatUptime(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "0m 45s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 14*time.Minute, "2h 14m"},
		{26*time.Hour + 30*time.Minute, "1d 2h 30m"},
		{72 * time.Hour, "3d 0h 0m"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRouterOwnerGate(t *testing.T) {
	t.Parallel()
	r := NewRouter(nil, []int64{42, 99}, logx.Nop())
	if _, ok := r.owners[42]; !ok {
		t.Fatal("owner 42 missing from gate set")
	}
	if _, ok := r.owners[7]; ok {
		t.Fatal("non-owner present in gate set")
	}
}
