package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	dremioclient "github.com/txn2/mcp-dremio/pkg/dremio"
	"github.com/txn2/mcp-dremio/pkg/platform"
	"github.com/txn2/mcp-dremio/pkg/query"
)

const (
	testBaseURL = "http://localhost:9047/api/v3"
	testToken   = "pat-123"
	testSelect  = "SELECT 1 AS one"
	testMissing = "SELECT * FROM missing"
)

type fakeDremio struct {
	mu      sync.Mutex
	calls   []string
	pingErr error
}

func (f *fakeDremio) ExecuteQuery(_ context.Context, sql string) (*query.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sql)
	f.mu.Unlock()

	if sql == testMissing {
		return nil, &dremioclient.JobFailedError{JobID: "job-9", State: dremioclient.JobFailed, Message: "table not found"}
	}
	return &query.Result{
		JobID:   "job-1",
		Columns: []query.Column{{Name: "one", Type: "INTEGER"}},
		Rows:    []query.Row{{"one": json.Number("1")}},
	}, nil
}

func (f *fakeDremio) Ping(context.Context) error {
	return f.pingErr
}

func setDremioEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DREMIO_TYPE", "software")
	t.Setenv("DREMIO_BASE_URL", testBaseURL)
	t.Setenv("DREMIO_TOKEN", testToken)
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, client *fakeDremio, stdin string, args ...string) (string, error) {
	t.Helper()
	var opts []platform.Option
	if client != nil {
		opts = append(opts, platform.WithDremioClient(client))
	}
	cmd := newRootCommand(opts...)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, nil, "", "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "mcp-dremio version dev") {
		t.Errorf("output = %q", out)
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()
	want := map[string]bool{"serve": false, "query": false, "ping": false, "audit": false, "hash-key": false, "version": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestPingCommand(t *testing.T) {
	setDremioEnv(t)

	out, err := execute(t, &fakeDremio{}, "", "ping")
	if err != nil {
		t.Fatalf("ping error = %v", err)
	}
	if out != "ok: connection dremio\n" {
		t.Errorf("output = %q", out)
	}

	_, err = execute(t, &fakeDremio{pingErr: errors.New("401 unauthorized")}, "", "ping")
	if err == nil {
		t.Error("expected ping error")
	}
}

func TestPingCommand_NoConfig(t *testing.T) {
	for _, k := range []string{"DREMIO_TYPE", "DREMIO_BASE_URL", "DREMIO_TOKEN", "DREMIO_PROJECT_ID", "DREMIO_SKIP_TLS_VERIFY"} {
		t.Setenv(k, "")
	}
	_, err := execute(t, &fakeDremio{}, "", "ping")
	if !errors.Is(err, platform.ErrNoDremioConfig) {
		t.Errorf("error = %v, want ErrNoDremioConfig", err)
	}
}

func TestQueryCommand_Single(t *testing.T) {
	setDremioEnv(t)
	client := &fakeDremio{}

	out, err := execute(t, client, "", "query", testSelect)
	if err != nil {
		t.Fatalf("query error = %v", err)
	}

	var got queryOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding output %q: %v", out, err)
	}
	if got.JobID != "job-1" || got.RowCount != 1 {
		t.Errorf("output = %+v", got)
	}
	if len(client.calls) != 1 || client.calls[0] != testSelect {
		t.Errorf("calls = %v", client.calls)
	}
}

func TestQueryCommand_Stdin(t *testing.T) {
	setDremioEnv(t)
	client := &fakeDremio{}

	if _, err := execute(t, client, "  "+testSelect+"\n", "query", "-"); err != nil {
		t.Fatalf("query error = %v", err)
	}
	if len(client.calls) != 1 || client.calls[0] != testSelect {
		t.Errorf("calls = %v", client.calls)
	}
}

func TestQueryCommand_BatchContinueOnFail(t *testing.T) {
	setDremioEnv(t)
	client := &fakeDremio{}

	out, err := execute(t, client, "", "query", "--continue-on-fail", testSelect, testMissing, testSelect)
	if err != nil {
		t.Fatalf("query error = %v", err)
	}

	var records []query.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decoding output %q: %v", out, err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[1].Item != 1 || records[1].JSON["error"] == nil {
		t.Errorf("record 1 = %+v, want an error record for item 1", records[1])
	}
	if records[2].Item != 2 {
		t.Errorf("record 2 item = %d, want 2", records[2].Item)
	}
}

func TestQueryCommand_BatchAborts(t *testing.T) {
	setDremioEnv(t)
	client := &fakeDremio{}

	_, err := execute(t, client, "", "query", testSelect, testMissing, testSelect)
	if err == nil {
		t.Fatal("expected batch to abort")
	}
	var itemErr *query.ItemError
	if !errors.As(err, &itemErr) || itemErr.Index != 1 {
		t.Errorf("error = %v, want ItemError for item 1", err)
	}
	if len(client.calls) != 2 {
		t.Errorf("calls = %v, want the third statement skipped", client.calls)
	}
}

func TestReadStatements(t *testing.T) {
	got, err := readStatements(strings.NewReader("SELECT 2\n"), []string{"SELECT 1", "-"})
	if err != nil {
		t.Fatalf("readStatements() error = %v", err)
	}
	if len(got) != 2 || got[1] != "SELECT 2" {
		t.Errorf("statements = %v", got)
	}

	if _, err := readStatements(strings.NewReader(""), []string{"-", "-"}); err == nil {
		t.Error("expected error reading stdin twice")
	}
}

func TestAuditCommand_Disabled(t *testing.T) {
	setDremioEnv(t)

	_, err := execute(t, &fakeDremio{}, "", "audit", "overview")
	if !errors.Is(err, errAuditDisabled) {
		t.Errorf("error = %v, want errAuditDisabled", err)
	}
}

func TestAuditCommand_InvalidDimension(t *testing.T) {
	setDremioEnv(t)

	_, err := execute(t, &fakeDremio{}, "", "audit", "breakdown", "--by", "persona")
	if err == nil || !strings.Contains(err.Error(), "invalid --by") {
		t.Errorf("error = %v, want invalid dimension", err)
	}
}

func TestHashKeyCommand(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{name: "argument", args: []string{"hash-key", "s3cret-key"}},
		{name: "stdin", stdin: "s3cret-key\n", args: []string{"hash-key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, nil, tt.stdin, tt.args...)
			if err != nil {
				t.Fatalf("hash-key error = %v", err)
			}
			hash := strings.TrimSpace(out)
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-key")); err != nil {
				t.Errorf("output %q does not verify the key: %v", hash, err)
			}
		})
	}
}

func TestHashKeyCommand_ConfigEntry(t *testing.T) {
	out, err := execute(t, nil, "", "hash-key", "--name", "analyst", "s3cret-key")
	if err != nil {
		t.Fatalf("hash-key error = %v", err)
	}
	if !strings.HasPrefix(out, "- name: analyst\n  hash: \"$2a$") {
		t.Errorf("output = %q", out)
	}
}

func TestHashKeyCommand_EmptyKey(t *testing.T) {
	_, err := execute(t, nil, "  \n", "hash-key")
	if !errors.Is(err, errEmptyKey) {
		t.Errorf("error = %v, want errEmptyKey", err)
	}
}

func TestServeCommand_InvalidTransport(t *testing.T) {
	setDremioEnv(t)

	_, err := execute(t, &fakeDremio{}, "", "serve", "--transport", "sse")
	if err == nil || !strings.Contains(err.Error(), "server.transport") {
		t.Errorf("error = %v, want transport validation error", err)
	}
}

func TestApplyServeFlags(t *testing.T) {
	cfg := &platform.Config{Server: platform.ServerConfig{Transport: platform.TransportHTTP, Address: ":9000"}}
	so := &serveOptions{}
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.StringVar(&so.transport, "transport", platform.TransportStdio, "")
	flags.StringVar(&so.address, "address", "", "")

	applyServeFlags(flags, cfg, so)
	if cfg.Server.Transport != platform.TransportHTTP || cfg.Server.Address != ":9000" {
		t.Errorf("unset flags overrode config: %+v", cfg.Server)
	}

	if err := flags.Set("address", ":9100"); err != nil {
		t.Fatal(err)
	}
	applyServeFlags(flags, cfg, so)
	if cfg.Server.Address != ":9100" {
		t.Errorf("Address = %q, want flag value", cfg.Server.Address)
	}
}

func TestServeHTTP_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	done := make(chan error, 1)
	go func() {
		done <- serveHTTP(ctx, addr, handler, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveHTTP() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serveHTTP did not return after cancel")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Debug("hello", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("output = %q, want JSON record", buf.String())
	}

	if _, err := newLogger(&buf, "loud", "text"); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), ".env"), false); err != nil {
		t.Errorf("missing default env file should be ignored: %v", err)
	}
	if err := loadEnvFile(filepath.Join(t.TempDir(), "custom.env"), true); err == nil {
		t.Error("expected error for missing explicit env file")
	}

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("MCP_DREMIO_TEST_ENV_VALUE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MCP_DREMIO_TEST_ENV_VALUE", "")
	_ = os.Unsetenv("MCP_DREMIO_TEST_ENV_VALUE")
	if err := loadEnvFile(path, true); err != nil {
		t.Fatalf("loadEnvFile() error = %v", err)
	}
	if got := os.Getenv("MCP_DREMIO_TEST_ENV_VALUE"); got != "loaded" {
		t.Errorf("env value = %q, want loaded", got)
	}
}
