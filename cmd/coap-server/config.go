package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coapkit/coap/pkg/link"
)

// serverConfig is the structure of the YAML resource manifest.
type serverConfig struct {
	// Listen is the UDP address to bind. The -listen flag overrides it.
	Listen string `yaml:"listen"`

	Resources []resourceConfig `yaml:"resources"`
}

// resourceConfig describes one served resource.
type resourceConfig struct {
	// Path is the absolute resource path, e.g. /sensors/temp.
	Path string `yaml:"path"`

	// Payload is the initial representation.
	Payload string `yaml:"payload"`

	// ContentFormat is the CoAP Content-Format number of the payload.
	ContentFormat uint32 `yaml:"content_format"`

	// Writable permits PUT to replace the representation.
	Writable bool `yaml:"writable"`

	// Link attributes advertised at /.well-known/core.
	ResourceType string `yaml:"rt"`
	Interface    string `yaml:"if"`
	Title        string `yaml:"title"`
}

// loadConfig reads and validates a YAML manifest file.
func loadConfig(path string) (*serverConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*serverConfig, error) {
	var cfg serverConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *serverConfig) validate() error {
	seen := make(map[string]bool, len(c.Resources))
	for _, r := range c.Resources {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("resource path %q must start with /", r.Path)
		}
		if seen[r.Path] {
			return fmt.Errorf("duplicate resource path %q", r.Path)
		}
		seen[r.Path] = true
	}
	return nil
}

// linkParams translates the manifest attributes into link-format
// attributes for discovery.
func (r resourceConfig) linkParams() []link.Param {
	var params []link.Param
	if r.ResourceType != "" {
		params = append(params, link.Param{Name: "rt", Value: r.ResourceType, HasValue: true})
	}
	if r.Interface != "" {
		params = append(params, link.Param{Name: "if", Value: r.Interface, HasValue: true})
	}
	if r.Title != "" {
		params = append(params, link.Param{Name: "title", Value: r.Title, HasValue: true})
	}
	if r.ContentFormat != 0 {
		params = append(params, link.Param{Name: "ct", Value: fmt.Sprintf("%d", r.ContentFormat), HasValue: true})
	}
	return params
}
