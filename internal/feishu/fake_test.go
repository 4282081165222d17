package feishu_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"xinfadi_prices/internal/feishu"

	"golang.org/x/oauth2"
)

var fixedNow = time.Unix(1700000000, 0)

func clock() time.Time { return fixedNow }

type writeCall struct {
	Range  string
	Values [][]any
}

// fakeFeishu answers the subset of the open platform the crawler uses.
type fakeFeishu struct {
	t *testing.T

	mu          sync.Mutex
	calls       map[string]int
	auth        map[string]string
	tenantCode  int
	listCode    int
	fileNames   []string
	created     []string
	writes      []writeCall
	failWriteAt int
}

func newFakeFeishu(t *testing.T) (*fakeFeishu, string) {
	f := &fakeFeishu{t: t, calls: map[string]int{}, auth: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func (f *fakeFeishu) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeFeishu) recordedWrites() []writeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]writeCall(nil), f.writes...)
}

func (f *fakeFeishu) createdTitles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

func (f *fakeFeishu) authHeader(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[path]
}

func (f *fakeFeishu) reply(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeFeishu) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.calls[path]++
	f.auth[path] = r.Header.Get("Authorization")

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case path == "/auth/v3/app_access_token/internal":
		f.reply(w, map[string]any{"code": 0, "app_access_token": "app-token", "expire": 7200})

	case path == "/auth/v3/tenant_access_token/internal":
		if f.tenantCode != 0 {
			f.reply(w, map[string]any{"code": f.tenantCode, "msg": "app secret invalid"})
			return
		}
		f.reply(w, map[string]any{"code": 0, "tenant_access_token": "tenant-token", "expire": 7200})

	case path == "/authen/v1/oidc/access_token":
		if body["code"] == "bad-code" {
			f.reply(w, map[string]any{"code": 20003, "msg": "invalid code"})
			return
		}
		f.reply(w, map[string]any{"code": 0, "data": map[string]any{
			"access_token":  "user-token",
			"refresh_token": "refresh-1",
			"name":          "张三",
		}})

	case path == "/authen/v1/oidc/refresh_access_token":
		if body["refresh_token"] != "refresh-1" {
			f.reply(w, map[string]any{"code": 20026, "msg": "refresh token invalid"})
			return
		}
		f.reply(w, map[string]any{"code": 0, "data": map[string]any{
			"access_token":  "user-token-2",
			"refresh_token": "refresh-2",
			"expires_in":    6900,
		}})

	case path == "/drive/v1/files":
		if f.listCode != 0 {
			f.reply(w, map[string]any{"code": f.listCode, "msg": "forbidden"})
			return
		}
		files := make([]map[string]any, 0, len(f.fileNames))
		for _, name := range f.fileNames {
			files = append(files, map[string]any{"name": name, "type": "sheet", "token": "tok-" + name})
		}
		f.reply(w, map[string]any{"code": 0, "data": map[string]any{"files": files, "has_more": false}})

	case path == "/sheets/v3/spreadsheets" && r.Method == http.MethodPost:
		title, _ := body["title"].(string)
		f.created = append(f.created, title)
		f.reply(w, map[string]any{"code": 0, "data": map[string]any{"spreadsheet": map[string]any{
			"spreadsheet_token": "shtcn1",
			"url":               "https://example.feishu.cn/sheets/shtcn1",
			"title":             title,
		}}})

	case path == "/sheets/v3/spreadsheets/shtcn1/sheets/query":
		f.reply(w, map[string]any{"code": 0, "data": map[string]any{"sheets": []map[string]any{
			{"sheet_id": "abc123", "title": "Sheet1", "index": 0},
		}}})

	case path == "/sheets/v3/spreadsheets/shtcn1":
		f.reply(w, map[string]any{"code": 0, "data": map[string]any{"spreadsheet": map[string]any{
			"title": "新发地价格_2024-01-15", "spreadsheet_token": "shtcn1",
		}}})

	case path == "/sheets/v2/spreadsheets/shtcn1/sheets_batch_update":
		f.reply(w, map[string]any{"code": 0, "data": map[string]any{"replies": []map[string]any{
			{"addSheet": map[string]any{"properties": map[string]any{"sheetId": "def456", "title": "x"}}},
		}}})

	case path == "/sheets/v2/spreadsheets/shtcn1/values" && r.Method == http.MethodPut:
		vr, _ := body["valueRange"].(map[string]any)
		rng, _ := vr["range"].(string)
		raw, _ := vr["values"].([]any)
		values := make([][]any, len(raw))
		for i, row := range raw {
			values[i], _ = row.([]any)
		}
		f.writes = append(f.writes, writeCall{Range: rng, Values: values})
		if len(f.writes) == f.failWriteAt {
			f.reply(w, map[string]any{"code": 90202, "msg": "too many rows"})
			return
		}
		f.reply(w, map[string]any{"code": 0, "data": map[string]any{"updatedRange": rng}})

	default:
		f.t.Errorf("Unexpected request %s %s", r.Method, path)
		w.WriteHeader(http.StatusNotFound)
	}
}

// writeConfig stores cfg in a fresh temp dir and returns its store.
func writeConfig(t *testing.T, cfg feishu.Config) *feishu.ConfigStore {
	t.Helper()
	if cfg.AppID == "" {
		cfg.AppID = "cli_test"
	}
	if cfg.AppSecret == "" {
		cfg.AppSecret = "secret"
	}
	store := feishu.NewConfigStore(filepath.Join(t.TempDir(), "feishu_config.json"))
	if err := store.Save(&cfg); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return store
}

func newManager(t *testing.T, base string, store *feishu.ConfigStore) *feishu.TokenManager {
	t.Helper()
	m, err := feishu.NewTokenManager(base, store, feishu.WithClock(clock))
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}
	return m
}

type staticToken string

func (s staticToken) Bearer(context.Context) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: string(s), TokenType: "Bearer"}, nil
}

func unix(offset time.Duration) float64 {
	return float64(fixedNow.Add(offset).Unix())
}
