package main

import (
	"errors"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"flowline/internal/api"
	"flowline/internal/config"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// client resolves the control API address from the --api flag or the
// configured bind address.
func (c *commandContext) client() (*api.Client, error) {
	if c.apiFlag != nil {
		if address := strings.TrimSpace(*c.apiFlag); address != "" {
			return api.NewClient(address), nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	address := strings.TrimSpace(cfg.Paths.APIBind)
	if address == "" {
		return nil, errors.New("control API is disabled; set paths.api_bind or pass --api")
	}
	return api.NewClient(address), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
