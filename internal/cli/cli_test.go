package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Sternrassler/callrail-extractor/internal/testutil"
	"github.com/goccy/go-json"
)

const testAccount = "ACC1"

func accountPath(name string) string {
	return "/v3/a/" + testAccount + "/" + name + ".json"
}

// testEnv points the extractor at mock and returns the data directory.
func testEnv(t *testing.T, mock *testutil.MockCallRail) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CALLRAIL_CONFIG", "")
	t.Setenv("CALLRAIL_API_KEY", "test-key")
	t.Setenv("CALLRAIL_API_BASE_URL", mock.URL())
	t.Setenv("CALLRAIL_ACCOUNT_ID", testAccount)
	t.Setenv("CALLRAIL_REQUESTS_PER_SECOND", "0")
	t.Setenv("CALLRAIL_RETRY_BASE_DELAY", "1ms")
	t.Setenv("CALLRAIL_RETRY_MAX_DELAY", "2ms")
	t.Setenv("CALLRAIL_BREAKER_ENABLED", "false")
	t.Setenv("CALLRAIL_REDIS_ADDR", "")
	t.Setenv("CALLRAIL_DATA_DIR", filepath.Join(dir, "data"))
	return filepath.Join(dir, "data")
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// countingListener accepts and drops TCP connections, counting them.
func countingListener(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	var n atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
			n.Add(1)
			_ = conn.Close()
		}
	}()
	return ln.Addr().String(), &n
}

func TestExecute_Hint(t *testing.T) {
	code, out, _ := execute(t)
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.Contains(out, "--all or --endpoints") {
		t.Errorf("stdout = %q, want usage hint", out)
	}
}

func TestExecute_ListEndpoints(t *testing.T) {
	for _, args := range [][]string{{"--list-endpoints"}, {"list"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			code, out, _ := execute(t, args...)
			if code != 0 {
				t.Errorf("exit code = %d, want 0", code)
			}
			for _, name := range []string{"accounts", "calls", "companies", "outbound_caller_ids"} {
				if !strings.Contains(out, name) {
					t.Errorf("listing missing %s", name)
				}
			}
		})
	}
}

func TestExecute_EndpointInfo(t *testing.T) {
	for _, args := range [][]string{{"--endpoint-info", "calls"}, {"info", "calls"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			code, out, _ := execute(t, args...)
			if code != 0 {
				t.Errorf("exit code = %d, want 0", code)
			}
			for _, want := range []string{"/v3/a/{account_id}/calls.json", "relative", "customer_phone_number"} {
				if !strings.Contains(out, want) {
					t.Errorf("info output missing %q", want)
				}
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		code, _, errOut := execute(t, "info", "bogus_endpoint")
		if code != 1 {
			t.Errorf("exit code = %d, want 1", code)
		}
		if !strings.Contains(errOut, "invalid endpoints: bogus_endpoint") {
			t.Errorf("stderr = %q, want invalid endpoint message", errOut)
		}
	})
}

func TestExecute_Run(t *testing.T) {
	mock := testutil.NewMockCallRail()
	defer mock.Close()
	dataDir := testEnv(t, mock)

	mock.SetRecords(accountPath("users"), "users", testutil.MakeRecords(12, "USR"))
	mock.SetRecords(accountPath("tags"), "tags", testutil.MakeRecords(3, "TAG"))

	metricsPath := filepath.Join(dataDir, "metrics.prom")
	code, out, errOut := execute(t,
		"-e", "users,tags",
		"-l", "10",
		"-b", "10",
		"--metrics-file", metricsPath,
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, errOut)
	}

	if !strings.Contains(out, "SUCCESS") {
		t.Errorf("stdout = %q, want SUCCESS rows", out)
	}
	if !strings.Contains(errOut, "DOWNLOAD SUMMARY") {
		t.Error("summary not logged")
	}
	for _, path := range []string{
		filepath.Join(dataDir, "users.csv"),
		filepath.Join(dataDir, "tags.csv"),
		metricsPath,
	} {
		if !fileExists(path) {
			t.Errorf("%s not written", path)
		}
	}

	data, err := os.ReadFile(filepath.Join(dataDir, "run_summary.json"))
	if err != nil {
		t.Fatal(err)
	}
	var summary struct {
		TotalEndpoints int `json:"total_endpoints"`
		TotalRecords   int `json:"total_records"`
		Endpoints      map[string]struct {
			Records int  `json:"records_processed"`
			Success bool `json:"success"`
		} `json:"endpoints"`
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("summary is not JSON: %v", err)
	}
	if summary.TotalEndpoints != 2 || summary.TotalRecords != 13 {
		t.Errorf("endpoints, records = %d, %d; want 2, 13", summary.TotalEndpoints, summary.TotalRecords)
	}
	if got := summary.Endpoints["users"].Records; got != 10 {
		t.Errorf("users records = %d, want 10", got)
	}
	if !summary.Endpoints["tags"].Success {
		t.Error("tags should succeed")
	}
}

func TestExecute_FailedEndpoint(t *testing.T) {
	mock := testutil.NewMockCallRail()
	defer mock.Close()
	testEnv(t, mock)

	mock.SetResponse(accountPath("users"), testutil.MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":"Resource not found"}`,
	})

	summaryPath := filepath.Join(t.TempDir(), "summary.json")
	code, out, errOut := execute(t, "--endpoints", "users", "--summary-json", summaryPath)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out, "FAILED") {
		t.Errorf("stdout = %q, want FAILED row", out)
	}
	if strings.Contains(errOut, "Error: one or more endpoints failed") {
		t.Error("a failed endpoint should not print a top level error")
	}
	if !fileExists(summaryPath) {
		t.Error("summary not written")
	}
}

func TestExecute_UnknownEndpoint(t *testing.T) {
	mock := testutil.NewMockCallRail()
	defer mock.Close()
	testEnv(t, mock)

	code, _, errOut := execute(t, "-e", "calls,bogus_endpoint")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut, "bogus_endpoint") {
		t.Errorf("stderr = %q, want it to name bogus_endpoint", errOut)
	}
	if n := mock.GetRequestCount(); n != 0 {
		t.Errorf("API requests = %d, want 0", n)
	}
}

func TestExecute_BadNamesContactNothing(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown endpoint", []string{"-e", "calls,bogus_endpoint"}, "bogus_endpoint"},
		{"duplicate endpoint", []string{"-e", "calls,tags,calls"}, "duplicate endpoints: calls"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCallRail()
			defer mock.Close()
			testEnv(t, mock)

			redisAddr, redisDials := countingListener(t)
			t.Setenv("CALLRAIL_REDIS_ADDR", redisAddr)

			var s3Requests atomic.Int32
			s3 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				s3Requests.Add(1)
				w.WriteHeader(http.StatusOK)
			}))
			defer s3.Close()
			t.Setenv("CALLRAIL_UPLOAD_ENDPOINT", strings.TrimPrefix(s3.URL, "http://"))
			t.Setenv("CALLRAIL_UPLOAD_BUCKET", "exports")
			t.Setenv("CALLRAIL_UPLOAD_USE_SSL", "false")

			code, _, errOut := execute(t, tt.args...)

			if code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
			if !strings.Contains(errOut, tt.wantErr) {
				t.Errorf("stderr = %q, want %q", errOut, tt.wantErr)
			}
			if n := redisDials.Load(); n != 0 {
				t.Errorf("redis connections = %d, want 0", n)
			}
			if n := s3Requests.Load(); n != 0 {
				t.Errorf("upload requests = %d, want 0", n)
			}
			if n := mock.GetRequestCount(); n != 0 {
				t.Errorf("API requests = %d, want 0", n)
			}
		})
	}
}

func TestExecute_MissingAPIKey(t *testing.T) {
	mock := testutil.NewMockCallRail()
	defer mock.Close()
	testEnv(t, mock)
	t.Setenv("CALLRAIL_API_KEY", "")

	code, _, errOut := execute(t, "--all")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut, "api.key is required") {
		t.Errorf("stderr = %q, want missing key message", errOut)
	}
	if n := mock.GetRequestCount(); n != 0 {
		t.Errorf("API requests = %d, want 0", n)
	}
}

func TestExecute_APIKeyFlag(t *testing.T) {
	mock := testutil.NewMockCallRail()
	defer mock.Close()
	testEnv(t, mock)
	t.Setenv("CALLRAIL_API_KEY", "")

	mock.SetRecords(accountPath("tags"), "tags", testutil.MakeRecords(1, "TAG"))

	code, _, errOut := execute(t, "--api-key", "flag-key", "-e", "tags")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, errOut)
	}
	if got := mock.LastRequestHeader.Get("Authorization"); got != `Token token="flag-key"` {
		t.Errorf("Authorization = %q, want the flag key", got)
	}
}

func TestExecute_AccountLookup(t *testing.T) {
	mock := testutil.NewMockCallRail()
	defer mock.Close()
	testEnv(t, mock)
	t.Setenv("CALLRAIL_ACCOUNT_ID", "")

	mock.SetRecords("/v3/a.json", "accounts", []map[string]any{{"id": testAccount, "name": "Main"}})
	mock.SetRecords(accountPath("tags"), "tags", testutil.MakeRecords(2, "TAG"))

	code, _, errOut := execute(t, "-e", "tags")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, errOut)
	}
	if n := len(mock.RequestsFor("/v3/a.json")); n != 1 {
		t.Errorf("account lookups = %d, want 1", n)
	}
	if n := len(mock.RequestsFor(accountPath("tags"))); n != 1 {
		t.Errorf("tags requests = %d, want 1", n)
	}
}

func TestOverrides_OnlyChangedFlags(t *testing.T) {
	cmd := NewRootCmd()
	if err := cmd.ParseFlags([]string{"--format", "csv,parquet", "--data-dir", "out"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	opts := &Options{}
	opts.Formats, _ = cmd.Flags().GetStringSlice("format")
	opts.DataDir, _ = cmd.Flags().GetString("data-dir")

	got := overrides(cmd, opts)
	want := map[string]any{
		"output.formats":  []string{"csv", "parquet"},
		"output.data_dir": "out",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("overrides() = %v, want %v", got, want)
	}
}
