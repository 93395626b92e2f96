package main

import (
	"testing"
)

func TestParseConfig(t *testing.T) {
	data := []byte(`
listen: ":5683"
resources:
  - path: /sensors/temp
    payload: "22.5"
    rt: temperature
    title: Ambient temperature
  - path: /actuators/led
    payload: "off"
    writable: true
    rt: light
    content_format: 0
`)
	cfg, err := parseConfig(data)
	if err != nil {
		t.Fatalf("parseConfig() error: %v", err)
	}
	if cfg.Listen != ":5683" {
		t.Errorf("Listen = %q, want :5683", cfg.Listen)
	}
	if len(cfg.Resources) != 2 {
		t.Fatalf("got %d resources, want 2", len(cfg.Resources))
	}

	temp := cfg.Resources[0]
	if temp.Path != "/sensors/temp" || temp.Payload != "22.5" || temp.Writable {
		t.Errorf("temp resource = %+v", temp)
	}
	if temp.ResourceType != "temperature" || temp.Title != "Ambient temperature" {
		t.Errorf("temp attributes = %+v", temp)
	}

	led := cfg.Resources[1]
	if !led.Writable || led.ResourceType != "light" {
		t.Errorf("led resource = %+v", led)
	}
}

func TestParseConfigRejectsBadManifests(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "{{"},
		{"relative path", "resources:\n  - path: sensors/temp"},
		{"duplicate path", "resources:\n  - path: /a\n  - path: /a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseConfig([]byte(tt.data)); err == nil {
				t.Error("parseConfig() accepted a bad manifest")
			}
		})
	}
}

func TestResourceLinkParams(t *testing.T) {
	rc := resourceConfig{
		Path:          "/sensors/temp",
		ResourceType:  "temperature",
		Interface:     "sensor",
		Title:         "Ambient",
		ContentFormat: 50,
	}
	params := rc.linkParams()
	if len(params) != 4 {
		t.Fatalf("got %d params, want 4: %+v", len(params), params)
	}
	want := map[string]string{"rt": "temperature", "if": "sensor", "title": "Ambient", "ct": "50"}
	for _, p := range params {
		if want[p.Name] != p.Value {
			t.Errorf("param %s = %q, want %q", p.Name, p.Value, want[p.Name])
		}
	}

	if got := (resourceConfig{Path: "/bare"}).linkParams(); got != nil {
		t.Errorf("bare resource params = %+v, want none", got)
	}
}
