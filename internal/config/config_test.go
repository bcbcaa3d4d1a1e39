package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validConfig = `
engine:
  size_of_packet_channel: 64
  stats_period: 5s
  interfaces:
    - name: eth0
      default_policy_id: 1
      subject: shaper.eth0
      scheduler:
        algorithm: wrr
        wrr_queues:
          - queue_id: 1
            weight: 1
            aqm: { min_threshold_bytes: 1000, max_threshold_bytes: 2000, max_probability: 0.1, ewma_weight: 0.002, capacity_bytes: 4000 }
          - queue_id: 2
            weight: 2
            aqm: { min_threshold_bytes: 1000, max_threshold_bytes: 2000, max_probability: 0.1, ewma_weight: 0.002, capacity_bytes: 4000 }
policies:
  - id: 1
    parent_id: 0
    name: default
    cir_bps: 1000000
    pir_bps: 2000000
    cbs_bytes: 1500
    ebs_bytes: 3000
    algorithm: wrr
    weight: 1
    priority_level: 0
    drop_on_red: true
    priority_green: 1
    priority_yellow: 2
    priority_red: 2
    queue_id_green: 1
    queue_id_yellow: 2
    queue_id_red: 2
probe:
  nats_url: nats://127.0.0.1:4222
api:
  listen_addr: ":8080"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfigValid(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if len(cfg.Engine.Interfaces) != 1 {
		t.Fatalf("interfaces = %d, want 1", len(cfg.Engine.Interfaces))
	}
	ifc := cfg.Engine.Interfaces[0]
	if ifc.Name != "eth0" || ifc.DefaultPolicyID != 1 || ifc.Subject != "shaper.eth0" {
		t.Errorf("interface parsed wrong: %+v", ifc)
	}
	if ifc.Scheduler.Algorithm != "wrr" || len(ifc.Scheduler.WrrQueues) != 2 {
		t.Errorf("scheduler parsed wrong: %+v", ifc.Scheduler)
	}
	if ifc.Scheduler.WrrQueues[1].Weight != 2 {
		t.Errorf("queue weight = %d, want 2", ifc.Scheduler.WrrQueues[1].Weight)
	}
	if len(cfg.Policies) != 1 || cfg.Policies[0].Name != "default" || !cfg.Policies[0].DropOnRed {
		t.Errorf("policies parsed wrong: %+v", cfg.Policies)
	}
	if cfg.Probe.NATSURL != "nats://127.0.0.1:4222" {
		t.Errorf("probe parsed wrong: %+v", cfg.Probe)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected a missing file to fail")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "engine: [")); err == nil {
		t.Fatalf("expected malformed YAML to fail")
	}
}

func TestValidateRejections(t *testing.T) {
	load := func(t *testing.T, mutate func(c *Config)) error {
		t.Helper()
		cfg, err := LoadConfig(writeConfig(t, validConfig))
		if err != nil {
			t.Fatalf("base config did not load: %v", err)
		}
		mutate(cfg)
		return cfg.Validate()
	}

	cases := map[string]func(c *Config){
		"no interfaces": func(c *Config) { c.Engine.Interfaces = nil },
		"duplicate policy id": func(c *Config) {
			c.Policies = append(c.Policies, c.Policies[0])
		},
		"policy id zero": func(c *Config) { c.Policies[0].ID = 0 },
		"pir below cir":  func(c *Config) { c.Policies[0].PirBps = 1 },
		"unknown parent": func(c *Config) { c.Policies[0].ParentID = 99 },
		"self parent":    func(c *Config) { c.Policies[0].ParentID = c.Policies[0].ID },
		"unknown default policy": func(c *Config) {
			c.Engine.Interfaces[0].DefaultPolicyID = 42
		},
		"duplicate interface": func(c *Config) {
			c.Engine.Interfaces = append(c.Engine.Interfaces, c.Engine.Interfaces[0])
		},
		"unknown algorithm": func(c *Config) {
			c.Engine.Interfaces[0].Scheduler.Algorithm = "fifo"
		},
		"empty scheduler": func(c *Config) {
			c.Engine.Interfaces[0].Scheduler.WrrQueues = nil
		},
	}
	for name, mutate := range cases {
		if err := load(t, mutate); err == nil {
			t.Errorf("%s: expected validation to fail", name)
		}
	}
}
