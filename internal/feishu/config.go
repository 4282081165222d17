package feishu

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	placeholderAppID     = "YOUR_APP_ID"
	placeholderAppSecret = "YOUR_APP_SECRET"
)

// ErrNotConfigured means the credential file is missing or still holds the
// template placeholders.
var ErrNotConfigured = errors.New("feishu app credentials not configured")

// Config is the persisted credential and token state.
type Config struct {
	AppID                string          `json:"app_id"`
	AppSecret            string          `json:"app_secret"`
	FolderToken          string          `json:"folder_token"`
	UserAccessToken      string          `json:"user_access_token"`
	RefreshToken         string          `json:"refresh_token"`
	TokenExpiresAt       float64         `json:"token_expires_at"`
	TenantAccessToken    string          `json:"tenant_access_token,omitempty"`
	TenantTokenExpiresAt float64         `json:"tenant_token_expires_at,omitempty"`
	UseTenantToken       bool            `json:"use_tenant_token"`
	UpdatedAt            string          `json:"updated_at,omitempty"`
	Instructions         json.RawMessage `json:"instructions,omitempty"`
}

// Validate reports ErrNotConfigured until real app credentials are filled in.
func (c *Config) Validate() error {
	if c.AppID == "" || c.AppID == placeholderAppID {
		return fmt.Errorf("%w: app_id missing", ErrNotConfigured)
	}
	if c.AppSecret == "" || c.AppSecret == placeholderAppSecret {
		return fmt.Errorf("%w: app_secret missing", ErrNotConfigured)
	}
	return nil
}

// ConfigStore reads and writes the credential file. Keys it does not know
// about are carried over on every save.
type ConfigStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path, now: time.Now}
}

func (s *ConfigStore) Path() string {
	return s.path
}

func (s *ConfigStore) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNotConfigured, s.path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", s.path, err)
	}
	return &cfg, nil
}

// Save stamps updated_at and atomically replaces the file.
func (s *ConfigStore) Save(cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.UpdatedAt = s.now().Format("2006-01-02T15:04:05.000000")

	merged := map[string]json.RawMessage{}
	if existing, err := os.ReadFile(s.path); err == nil {
		// an unreadable old file is simply replaced
		_ = json.Unmarshal(existing, &merged)
	}

	known, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	for k, v := range fields {
		merged[k] = v
	}

	return s.write(merged)
}

// Init writes the configuration template unless a file already exists.
func (s *ConfigStore) Init(redirectURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to check config: %w", err)
	}

	instructions, err := json.Marshal(map[string]any{
		"step1":           "访问 https://open.feishu.cn/ 创建应用",
		"step2":           "在【安全设置】中添加重定向URL: " + redirectURL,
		"step3":           "在【权限管理】中添加以下权限:",
		"permissions":     []string{"sheets:spreadsheet - 创建和编辑电子表格", "drive:drive - 访问云空间"},
		"step4":           "发布应用版本（创建版本并发布）",
		"step5":           "将 app_id、app_secret 填入此文件",
		"step6":           "运行 xinfadi feishu auth 进行用户授权，或 xinfadi feishu simple 启用应用授权",
		"note_folder":     "folder_token 可选，如果要保存到特定文件夹，从文件夹URL获取",
		"note_folder_url": "格式如: https://xxx.feishu.cn/drive/folder/TOKEN",
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode instructions: %w", err)
	}

	template := Config{
		AppID:        placeholderAppID,
		AppSecret:    placeholderAppSecret,
		Instructions: instructions,
	}
	known, err := json.Marshal(template)
	if err != nil {
		return false, fmt.Errorf("failed to encode config: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return false, fmt.Errorf("failed to encode config: %w", err)
	}

	if err := s.write(fields); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ConfigStore) write(fields map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".feishu_config-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}
