package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInspect_FollowsChain(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		http.Redirect(w, r, "/b", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "c", http.StatusFound)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	chain := NewInspector(0, 1).Inspect(context.Background(), srv.URL+"/a")
	if chain.Err != nil {
		t.Fatalf("Inspect() err = %v", chain.Err)
	}
	if chain.Length() != 3 {
		t.Fatalf("Length() = %d, want 3", chain.Length())
	}
	if chain.FinalStatus() != http.StatusOK {
		t.Errorf("FinalStatus() = %d, want 200", chain.FinalStatus())
	}
	if got := chain.Hops[2].URL; got != srv.URL+"/c" {
		t.Errorf("last hop = %q", got)
	}
}

func TestInspect_FinalErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	chain := NewInspector(0, 1).Inspect(context.Background(), srv.URL)
	if chain.Err != nil || chain.Length() != 1 || chain.FinalStatus() != http.StatusNotFound {
		t.Errorf("chain = %+v", chain)
	}
}

func TestInspect_HopLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	chain := NewInspector(0, 1).Inspect(context.Background(), srv.URL+"/")
	if !errors.Is(chain.Err, ErrTooManyHops) {
		t.Fatalf("Err = %v, want ErrTooManyHops", chain.Err)
	}
	if chain.Length() != 1 {
		t.Errorf("soft-failed chain Length() = %d, want 1", chain.Length())
	}
}

func TestInspect_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	in := NewInspector(0, 1)
	in.timeout = 50 * time.Millisecond

	chain := in.Inspect(context.Background(), srv.URL)
	if chain.Err == nil {
		t.Fatal("expected timeout error")
	}
	if chain.Length() != 1 || chain.Hops[0].URL != srv.URL {
		t.Errorf("chain = %+v", chain)
	}
}

func TestInspect_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	chain := NewInspector(0, 1).Inspect(context.Background(), target)
	if chain.Err == nil || chain.Length() != 1 {
		t.Errorf("chain = %+v", chain)
	}
}

func TestChain_Total(t *testing.T) {
	t.Parallel()

	c := Chain{Hops: []Hop{{Duration: 10 * time.Millisecond}, {Duration: 15 * time.Millisecond}}}
	if c.Total() != 25*time.Millisecond {
		t.Errorf("Total() = %v", c.Total())
	}
	if (Chain{}).Length() != 1 {
		t.Error("empty chain should count as one hop")
	}
}
