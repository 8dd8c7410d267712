package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/extension"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/resource"
)

// fileConfig is the layout of the --config file.
type fileConfig struct {
	Server   serverConfig                `yaml:"server"`
	Capacity extension.Config            `yaml:"capacity"`
	Catalog  []seedResource              `yaml:"catalog"`
	Quotas   map[string][]seedAllocation `yaml:"quotas"`
}

type serverConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

type seedResource struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Unit        string `yaml:"unit"`
}

type seedAllocation struct {
	ResourceID string `yaml:"resource_id"`
	Limit      int64  `yaml:"limit"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Server: serverConfig{
			Addr:        ":8080",
			MetricsAddr: ":9090",
			LogLevel:    "info",
		},
		Capacity: extension.DefaultConfig(),
	}
}

// loadConfig reads path over the defaults. An empty path yields the defaults.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// seed writes the catalog and the initial quotas. Quotas are uploaded per
// product in name order so that failures are reproducible.
func (c fileConfig) seed(ctx context.Context, e *capacity.Engine) error {
	if len(c.Catalog) > 0 {
		resources := make([]*resource.Resource, len(c.Catalog))
		for i, r := range c.Catalog {
			resources[i] = &resource.Resource{
				ID:          r.ID,
				Name:        r.Name,
				Description: r.Description,
				Unit:        resource.Unit(r.Unit),
			}
		}
		if err := e.SeedResources(ctx, resources...); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}

	for _, productID := range sortedKeys(c.Quotas) {
		items := make([]quota.Allocation, len(c.Quotas[productID]))
		for i, a := range c.Quotas[productID] {
			items[i] = quota.Allocation{ResourceID: a.ResourceID, Limit: a.Limit}
		}
		if _, err := e.UploadQuotas(ctx, productID, items); err != nil {
			return fmt.Errorf("seed quotas for %s: %w", productID, err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
