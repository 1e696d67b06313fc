package replshell

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"sfp/internal/bitmap/memstore"
	"sfp/internal/filterinfo/memregistry"
	"sfp/internal/notify"
	"sfp/internal/pool"
	"sfp/internal/svcconfig"
	"sfp/internal/svcconfig/memory"
)

func newTestPool(store svcconfig.Store) *pool.Pool {
	return pool.New(pool.Config{
		Bitmap:   memstore.New(),
		Registry: memregistry.New(),
		Settings: &svcconfig.SettingsSource{Store: store},
	})
}

func TestHelp(t *testing.T) {
	store := memory.New()
	p := newTestPool(store)
	out := &bytes.Buffer{}
	r := New(p, store, nil, strings.NewReader("help\nexit\n"), out)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "contain <appid>") {
		t.Error("expected help text to mention the contain command")
	}
}

func TestInsertThenContain(t *testing.T) {
	store := memory.New()
	p := newTestPool(store)
	out := &bytes.Buffer{}
	input := "insert app1 users alice\ncontain app1 users alice\ncontain app1 users bob\nexit\n"
	r := New(p, store, nil, strings.NewReader(input), out)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "ok") {
		t.Errorf("expected insert to report ok, got:\n%s", joined)
	}
	if !strings.Contains(joined, "true") {
		t.Errorf("expected contain alice to report true, got:\n%s", joined)
	}
	if !strings.Contains(joined, "false") {
		t.Errorf("expected contain bob to report false, got:\n%s", joined)
	}
}

func TestBatchInsertThenBatchContain(t *testing.T) {
	store := memory.New()
	p := newTestPool(store)
	out := &bytes.Buffer{}
	input := "batch_insert app1 users a b c\nbatch_contain app1 users a b c d\nexit\n"
	r := New(p, store, nil, strings.NewReader(input), out)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	text := out.String()
	for _, want := range []string{"a: true", "b: true", "c: true", "d: false"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, text)
		}
	}
}

func TestChunksReportsCount(t *testing.T) {
	store := memory.New()
	p := newTestPool(store)
	out := &bytes.Buffer{}
	input := "insert app1 users alice\nchunks app1 users\nexit\n"
	r := New(p, store, nil, strings.NewReader(input), out)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "chunks") {
		t.Errorf("expected chunk count output, got:\n%s", out.String())
	}
}

func TestConfigSetThenGet(t *testing.T) {
	store := memory.New()
	p := newTestPool(store)
	out := &bytes.Buffer{}
	input := "config set app1 fp_rate=0.02 window_seconds=60 strategy_kind=fixed strategy_params=500 try_max=4\nconfig get app1\nexit\n"
	r := New(p, store, nil, strings.NewReader(input), out)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "fp_rate:         0.02") {
		t.Errorf("expected persisted fp_rate in output, got:\n%s", text)
	}
	if !strings.Contains(text, "strategy_kind:   fixed") {
		t.Errorf("expected persisted strategy_kind in output, got:\n%s", text)
	}
}

func TestConfigGetUnconfiguredAppID(t *testing.T) {
	store := memory.New()
	p := newTestPool(store)
	out := &bytes.Buffer{}
	input := "config get never-configured\nexit\n"
	r := New(p, store, nil, strings.NewReader(input), out)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "engine defaults apply") {
		t.Errorf("expected default-config message, got:\n%s", out.String())
	}
}

func TestWatchWakesOnNotify(t *testing.T) {
	store := memory.New()
	p := newTestPool(store)
	sig := notify.NewSignal()
	out := &bytes.Buffer{}
	input := "watch\nexit\n"
	r := New(p, store, sig, strings.NewReader(input), out)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	// watch only sees a Notify issued after it starts waiting, so keep
	// signalling until Run returns.
	var err error
	for waiting := true; waiting; {
		select {
		case err = <-done:
			waiting = false
		case <-time.After(10 * time.Millisecond):
			sig.Notify()
		}
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "activity detected") {
		t.Errorf("expected watch to report activity, got:\n%s", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	store := memory.New()
	p := newTestPool(store)
	out := &bytes.Buffer{}
	input := "bogus\nexit\n"
	r := New(p, store, nil, strings.NewReader(input), out)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Unknown command") {
		t.Errorf("expected unknown command message, got:\n%s", out.String())
	}
}
