// Package setup registers the MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ServerName is the key of the server entry in the client configuration.
const ServerName = "gravilog-risk-core"

// ClaudeDesktopConfig represents the Claude Desktop configuration file structure.
// Keys other than mcpServers are preserved.
type ClaudeDesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	Other      map[string]json.RawMessage `json:"-"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for the setup process.
type Options struct {
	BinaryPath string
	DataDir    string
	ConfigFile string
	APIKeyEnv  bool
}

// Status represents the current setup status.
type Status struct {
	ConfigPath string
	Configured bool
	ServerPath string
	DataDir    string
	Issues     []string
}

// UnmarshalJSON keeps unknown top-level keys.
func (c *ClaudeDesktopConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.MCPServers = make(map[string]MCPServerConfig)
	if servers, ok := raw["mcpServers"]; ok {
		if err := json.Unmarshal(servers, &c.MCPServers); err != nil {
			return fmt.Errorf("parsing mcpServers: %w", err)
		}
		delete(raw, "mcpServers")
	}
	c.Other = raw
	return nil
}

// MarshalJSON writes mcpServers alongside the preserved keys.
func (c ClaudeDesktopConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Other)+1)
	for k, v := range c.Other {
		out[k] = v
	}
	out["mcpServers"] = c.MCPServers
	return json.Marshal(out)
}

// ClaudeDesktopConfigPath returns the path to Claude Desktop's config file.
func ClaudeDesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// Load reads a client configuration. A missing file is an empty configuration.
func Load(configPath string) (*ClaudeDesktopConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &ClaudeDesktopConfig{MCPServers: make(map[string]MCPServerConfig)}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ClaudeDesktopConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// Save writes the configuration, creating its directory if needed.
func Save(configPath string, config *ClaudeDesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Configure adds or replaces the server entry in the client configuration at configPath.
func Configure(configPath string, opts Options) (MCPServerConfig, error) {
	if opts.BinaryPath == "" {
		return MCPServerConfig{}, errors.New("binary path is required")
	}

	config, err := Load(configPath)
	if err != nil {
		return MCPServerConfig{}, err
	}

	entry := MCPServerConfig{
		Command: opts.BinaryPath,
		Args:    []string{"mcp"},
		Env:     map[string]string{},
	}
	if opts.ConfigFile != "" {
		entry.Args = append(entry.Args, "--config", opts.ConfigFile)
	}
	if opts.DataDir != "" {
		entry.Env["GRAVILOG_DATA_DIR"] = opts.DataDir
	}
	if opts.APIKeyEnv {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			entry.Env["OPENAI_API_KEY"] = key
		}
	}

	config.MCPServers[ServerName] = entry
	if err := Save(configPath, config); err != nil {
		return MCPServerConfig{}, err
	}
	return entry, nil
}

// GetStatus checks whether the server is registered in the client configuration.
func GetStatus(configPath, defaultDataDir string) (*Status, error) {
	status := &Status{ConfigPath: configPath, Issues: []string{}}

	config, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	if entry, ok := config.MCPServers[ServerName]; ok {
		status.Configured = true
		status.ServerPath = entry.Command
		status.DataDir = entry.Env["GRAVILOG_DATA_DIR"]

		info, err := os.Stat(entry.Command)
		switch {
		case err != nil:
			status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found: %s", entry.Command))
		case runtime.GOOS != "windows" && info.Mode()&0o111 == 0:
			status.Issues = append(status.Issues, fmt.Sprintf("Server binary is not executable: %s", entry.Command))
		}
	}

	if status.DataDir == "" {
		status.DataDir = defaultDataDir
	}
	if _, err := os.Stat(status.DataDir); os.IsNotExist(err) {
		status.Issues = append(status.Issues, fmt.Sprintf("Data directory will be created on first run: %s", status.DataDir))
	}

	return status, nil
}
