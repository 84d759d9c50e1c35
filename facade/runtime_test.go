package facade_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/facade"
	"github.com/momentics/hioload-ipc/fake"
	"github.com/momentics/hioload-ipc/ipc"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRuntimeLifecycle(t *testing.T) {
	r, err := facade.New(facade.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if r.ID() == "" {
		t.Fatal("runtime has no instance id")
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	done := make(chan struct{})
	if err := r.Submit(func() { close(done) }); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submitted task never ran")
	}

	info := r.Info()
	if info.Name != "hioload-ipc" || info.Version != facade.Version {
		t.Fatalf("unexpected service info: %+v", info)
	}
	if info.StartedAt.IsZero() {
		t.Fatal("StartedAt not set after Start")
	}

	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := r.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if err := r.Submit(func() {}); !errors.Is(err, api.ErrBadState) {
		t.Fatalf("Submit after Shutdown = %v, want api.ErrBadState", err)
	}
}

func TestRuntimeControlSurface(t *testing.T) {
	r, err := facade.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	cfg := r.Control().GetConfig()
	if cfg["runtime_id"] != r.ID() {
		t.Fatalf("config runtime_id = %v, want %s", cfg["runtime_id"], r.ID())
	}
	if cfg["num_workers"] != 4 {
		t.Fatalf("config num_workers = %v, want 4", cfg["num_workers"])
	}

	reloads := 0
	r.Control().OnReload(func() { reloads++ })
	if err := r.Control().SetConfig(map[string]any{"extra": true}); err != nil {
		t.Fatal(err)
	}
	if reloads != 1 {
		t.Fatalf("reload hooks fired %d times, want 1", reloads)
	}

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	stats := r.Control().Stats()
	if stats["loop.state"] != "runnable" {
		t.Fatalf("loop.state metric = %v, want runnable", stats["loop.state"])
	}
	if _, ok := stats["debug.loop.stats"]; !ok {
		t.Fatal("debug.loop.stats probe missing")
	}
	if stats["debug.loop.state"] != "runnable" {
		t.Fatalf("debug.loop.state = %v, want runnable", stats["debug.loop.state"])
	}
}

func TestRuntimeEndToEndCall(t *testing.T) {
	r, err := facade.New(facade.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	stub := fake.NewStub()
	stub.SetEcho(true)
	server := r.NewStubController(stub)
	proxy := r.NewProxy()

	left, right := ipc.NewChannelPair()
	if err := server.Bind(left); err != nil {
		t.Fatal(err)
	}
	if err := proxy.Bind(right); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := proxy.Call(ctx, 42, []byte("ping"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(reply.Bytes); got != "ping" {
		t.Fatalf("reply payload = %q, want %q", got, "ping")
	}
	reply.Release()

	if stub.CallCount() != 1 {
		t.Fatalf("stub dispatched %d calls, want 1", stub.CallCount())
	}
	if calls := stub.Calls(); calls[0].Ordinal != 42 {
		t.Fatalf("stub saw ordinal %d, want 42", calls[0].Ordinal)
	}
}

func TestRuntimePumpDelivery(t *testing.T) {
	r, err := facade.New(facade.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	rec := fake.NewPumpRecorder()
	pm := r.NewPump(rec.Handle)

	left, right := ipc.NewChannelPair()
	if err := pm.Bind(left); err != nil {
		t.Fatal(err)
	}
	if err := right.Write(ipc.Message{Bytes: []byte("one")}); err != nil {
		t.Fatal(err)
	}
	if err := right.Write(ipc.Message{Bytes: []byte("two")}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "pump delivery", func() bool { return rec.Count() == 2 })

	got := rec.Payloads()
	if string(got[0]) != "one" || string(got[1]) != "two" {
		t.Fatalf("payloads = %q, %q", got[0], got[1])
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.toml")
	data := "num_workers = 2\nread_batch = 8\nenable_logging = false\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := facade.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NumWorkers != 2 || cfg.ReadBatch != 8 {
		t.Fatalf("loaded config = %+v", cfg)
	}
	if !cfg.EnableMetrics {
		t.Fatal("absent key did not keep its default")
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("no_such_key = 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := facade.LoadConfig(bad); err == nil {
		t.Fatal("unknown key accepted")
	}
}
