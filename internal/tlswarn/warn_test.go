package tlswarn

import (
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestInsecure(t *testing.T) {
	cases := []struct {
		url    string
		verify bool
		want   bool
	}{
		{"wss://vpn.example.com", false, true},
		{"WSS://vpn.example.com", false, true},
		{"https://vpn.example.com", false, true},
		{"wss://vpn.example.com", true, false},
		{"ws://vpn.example.com", false, false},
		{"::not a url", false, false},
	}
	for _, tc := range cases {
		if got := Insecure(tc.url, tc.verify); got != tc.want {
			t.Errorf("Insecure(%q, %v) = %v, want %v", tc.url, tc.verify, got, tc.want)
		}
	}
}

// TestLogInsecureOnce must NOT use t.Parallel() because it resets the
// package-level sync.Once.
func TestLogInsecureOnce(t *testing.T) {
	once = sync.Once{}

	logger, hook := test.NewNullLogger()

	LogInsecure(logger, "wss://a")
	LogInsecure(logger, "wss://b")
	LogInsecure(logger, "wss://c")

	if len(hook.Entries) != 1 {
		t.Fatalf("expected exactly 1 warning, got %d", len(hook.Entries))
	}
	entry := hook.LastEntry()
	if entry.Level != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", entry.Level)
	}
	if !strings.Contains(entry.Message, "verification is disabled") {
		t.Fatalf("warning missing expected text: %q", entry.Message)
	}
	if entry.Data["remote_url"] != "wss://a" {
		t.Fatalf("expected first URL in warning, got %v", entry.Data["remote_url"])
	}
}
