// Package config loads tool configuration from .acpcap/config.yaml files,
// merging the user-level file in the home directory with a project-level
// override in the working directory.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/m4xw311/acpcap/errors"
)

// Agent describes one launchable agent executable.
type Agent struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// MCPServer configures an MCP server passed to the agent at session
// creation and optionally probed before the session starts.
type MCPServer struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// Digest tunes session compression.
type Digest struct {
	KeepMessagePrefix bool `yaml:"keep_message_prefix"`
}

// Titler selects the model backend used to title captures.
type Titler struct {
	LLMClient string `yaml:"llm"`
	Model     string `yaml:"model"`
}

type Config struct {
	Agents         []Agent     `yaml:"agents"`
	MCPServers     []MCPServer `yaml:"mcp_servers"`
	PermissionMode string      `yaml:"permission_mode"`
	Digest         Digest      `yaml:"digest"`
	Titler         Titler      `yaml:"titler"`
}

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence. A .env
// file in the working directory is loaded into the environment first so
// API keys can live next to the project config.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".acpcap", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".acpcap", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, so project-level
	// values replace user-level ones field by field.
	return yaml.Unmarshal(data, cfg)
}

// GetAgent finds an agent by name. An empty name selects the first
// configured agent.
func (c *Config) GetAgent(name string) (*Agent, error) {
	if name == "" {
		if len(c.Agents) == 0 {
			return nil, errors.New("no agents configured")
		}
		return &c.Agents[0], nil
	}
	for i := range c.Agents {
		if c.Agents[i].Name == name {
			return &c.Agents[i], nil
		}
	}
	return nil, errors.New("agent %q not found in configuration", name)
}
