package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/linkpeek/linkpeek/internal/browser"
	"github.com/linkpeek/linkpeek/internal/handler/dto"
	"github.com/linkpeek/linkpeek/internal/model"
)

type fakeNavigator struct {
	replaced []string
	err      error
}

func (f *fakeNavigator) Replace(target string) error {
	f.replaced = append(f.replaced, target)
	return f.err
}

type fakeClipboard struct {
	err    error
	copied string
}

func (f *fakeClipboard) WriteText(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.copied = text
	return nil
}

type fakeLegacy struct {
	ok     bool
	copied string
}

func (f *fakeLegacy) ExecCopy(text string) bool {
	f.copied = text
	return f.ok
}

type recordingLogger struct {
	mu       sync.Mutex
	attempts []model.RecoveryAttempt
	err      error
}

func (r *recordingLogger) LogAttempt(_ context.Context, a model.RecoveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return r.err
}

var (
	androidInstagram = browser.Info{Name: "Instagram In-App", IsInAppBrowser: true, App: browser.AppInstagram, Platform: browser.PlatformAndroid, Device: browser.DeviceMobile}
	iosInstagram     = browser.Info{Name: "Instagram In-App", IsInAppBrowser: true, App: browser.AppInstagram, Platform: browser.PlatformIOS, Device: browser.DeviceMobile}
)

func fixedNow() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }

func TestIntentURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://shop.example/sale?x=1", "intent://shop.example/sale?x=1#Intent;scheme=https;action=android.intent.action.VIEW;end", false},
		{"https://shop.example", "intent://shop.example#Intent;scheme=https;action=android.intent.action.VIEW;end", false},
		{"http://shop.example/a%20b", "intent://shop.example/a%20b#Intent;scheme=https;action=android.intent.action.VIEW;end", false},
		{"/relative/path", "", true},
		{"https://shop.example/%zz", "", true},
	}
	for _, tt := range tests {
		got, err := IntentURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("IntentURL(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("IntentURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAttemptRecovery_Android(t *testing.T) {
	t.Parallel()

	nav := &fakeNavigator{}
	clip := &fakeClipboard{}
	logs := &recordingLogger{}
	visit := Visit{LinkID: "lnk_1", UserID: "usr_1", Destination: "https://shop.example/sale", Browser: androidInstagram}

	c := NewClient(visit, nav, WithClipboard(clip, nil), WithAttemptLogger(logs), WithClock(fixedNow))
	if !c.AttemptRecovery(context.Background()) {
		t.Fatal("expected intent recovery to apply")
	}

	if len(nav.replaced) != 1 || nav.replaced[0] != "intent://shop.example/sale#Intent;scheme=https;action=android.intent.action.VIEW;end" {
		t.Errorf("replaced = %v", nav.replaced)
	}
	if clip.copied != visit.Destination {
		t.Errorf("clipboard = %q", clip.copied)
	}
	if len(logs.attempts) != 2 {
		t.Fatalf("logged %d attempts, want 2", len(logs.attempts))
	}
	intent, copied := logs.attempts[0], logs.attempts[1]
	if intent.Strategy != model.RecoveryIntentURLAndroid || !intent.Success {
		t.Errorf("intent attempt = %+v", intent)
	}
	if copied.Strategy != model.RecoveryClipboardCopy || !copied.Success {
		t.Errorf("clipboard attempt = %+v", copied)
	}
	if intent.LinkID != "lnk_1" || intent.UserID != "usr_1" || intent.Platform != "android" || !intent.CreatedAt.Equal(fixedNow()) {
		t.Errorf("attempt context = %+v", intent)
	}
}

func TestAttemptRecovery_IOSReturnsFalse(t *testing.T) {
	t.Parallel()

	nav := &fakeNavigator{}
	logs := &recordingLogger{}
	c := NewClient(Visit{Destination: "https://shop.example", Browser: iosInstagram}, nav,
		WithClipboard(&fakeClipboard{}, nil), WithAttemptLogger(logs))

	if c.AttemptRecovery(context.Background()) {
		t.Fatal("iOS should fall back to manual instructions")
	}
	if len(nav.replaced) != 0 {
		t.Error("no navigation expected on iOS")
	}
	if len(logs.attempts) != 1 || logs.attempts[0].Strategy != model.RecoveryClipboardCopy {
		t.Errorf("attempts = %+v", logs.attempts)
	}
}

func TestAttemptRecovery_NavigatorErrorStillLogsConstruction(t *testing.T) {
	t.Parallel()

	logs := &recordingLogger{}
	c := NewClient(Visit{Destination: "https://shop.example", Browser: androidInstagram},
		&fakeNavigator{err: errors.New("blocked")}, WithAttemptLogger(logs))

	if c.AttemptRecovery(context.Background()) {
		t.Fatal("failed navigation should not report success")
	}
	if !logs.attempts[0].Success {
		t.Error("intent attempt should be logged as constructed")
	}
	if logs.attempts[1].Success {
		t.Error("no clipboard available, copy should fail")
	}
}

func TestAttemptRecovery_InvalidDestination(t *testing.T) {
	t.Parallel()

	nav := &fakeNavigator{}
	logs := &recordingLogger{}
	c := NewClient(Visit{Destination: "not a url", Browser: androidInstagram}, nav, WithAttemptLogger(logs))

	if c.AttemptRecovery(context.Background()) {
		t.Fatal("expected false")
	}
	if len(nav.replaced) != 0 {
		t.Error("navigator should not be called")
	}
	if logs.attempts[0].Strategy != model.RecoveryIntentURLAndroid || logs.attempts[0].Success {
		t.Errorf("intent attempt = %+v", logs.attempts[0])
	}
}

func TestAttemptRecovery_LegacyClipboardFallback(t *testing.T) {
	t.Parallel()

	legacy := &fakeLegacy{ok: true}
	logs := &recordingLogger{}
	c := NewClient(Visit{Destination: "https://shop.example", Browser: iosInstagram}, nil,
		WithClipboard(&fakeClipboard{err: errors.New("not allowed")}, legacy), WithAttemptLogger(logs))

	c.AttemptRecovery(context.Background())
	if legacy.copied != "https://shop.example" {
		t.Errorf("legacy copy = %q", legacy.copied)
	}
	if !logs.attempts[0].Success {
		t.Error("legacy copy success should be logged")
	}
}

func TestAttemptRecovery_LoggingErrorsSwallowed(t *testing.T) {
	t.Parallel()

	logs := &recordingLogger{err: errors.New("network down")}
	c := NewClient(Visit{Destination: "https://shop.example", Browser: androidInstagram}, &fakeNavigator{},
		WithAttemptLogger(logs))

	if !c.AttemptRecovery(context.Background()) {
		t.Fatal("logging failure must not change the outcome")
	}
	if len(logs.attempts) != 2 {
		t.Errorf("each strategy should still be attempted, got %d logs", len(logs.attempts))
	}
}

func TestHTTPLogger(t *testing.T) {
	t.Parallel()

	var got dto.RecoveryAttemptRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != AttemptsPath || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	l := NewHTTPLogger(srv.URL+"/", nil)
	err := l.LogAttempt(context.Background(), model.RecoveryAttempt{
		LinkID: "lnk_1", Strategy: model.RecoveryClipboardCopy, Success: true, Platform: "ios",
	})
	if err != nil {
		t.Fatalf("LogAttempt: %v", err)
	}
	if got.LinkID != "lnk_1" || got.Strategy != "clipboard_copy" || !got.Success {
		t.Errorf("server received %+v", got)
	}

	bad := NewHTTPLogger(srv.URL+"/nope", nil)
	if err := bad.LogAttempt(context.Background(), model.RecoveryAttempt{LinkID: "x"}); err == nil {
		t.Error("expected error for non-2xx")
	}
}
