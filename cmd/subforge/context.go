package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"subforge/internal/config"
)

type globalFlags struct {
	config string
	server string
	token  string
	user   string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// client returns an API client for the daemon named by --server or server.bind.
func (c *commandContext) client() (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	base := strings.TrimSpace(c.flags.server)
	if base == "" {
		base = "http://" + cfg.Server.Bind
	}
	token := strings.TrimSpace(c.flags.token)
	if token == "" {
		token = cfg.Server.Token
	}
	return newAPIClient(base, token, strings.TrimSpace(c.flags.user)), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
