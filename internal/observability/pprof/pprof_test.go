package pprof

import (
	"net/http"
	"net/http/httptest"
	"testing"

	logx "cvewatch/pkg/logx"
)

func TestNonLoopbackRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Addr: "0.0.0.0:6060"}, logx.Nop()); err == nil {
		t.Fatal("public bind without token must be rejected")
	}
	if _, err := New(Config{Addr: "0.0.0.0:6060", Token: "s3cret"}, logx.Nop()); err != nil {
		t.Fatalf("tokened public bind rejected: %v", err)
	}
	if _, err := New(Config{Addr: "127.0.0.1:6060"}, logx.Nop()); err != nil {
		t.Fatalf("loopback bind rejected: %v", err)
	}
}

func TestTokenGate(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Addr: "127.0.0.1:0", Token: "s3cret"}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/debug/pprof/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("untokened request got %d, want 403", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/debug/pprof/?token=s3cret")
	if err != nil {
		t.Fatalf("get with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tokened request got %d, want 200", resp.StatusCode)
	}
}
