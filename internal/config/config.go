package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceCurveDef defines one HFSC curve in the config file.
type ServiceCurveDef struct {
	RateBps uint64 `yaml:"rate_bps"`
	DelayUs uint64 `yaml:"delay_us"`
}

// AqmDef defines the RED parameters of a single queue.
type AqmDef struct {
	MinThresholdBytes uint64  `yaml:"min_threshold_bytes"`
	MaxThresholdBytes uint64  `yaml:"max_threshold_bytes"`
	MaxProbability    float64 `yaml:"max_probability"`
	EwmaWeight        float64 `yaml:"ewma_weight"`
	CapacityBytes     uint64  `yaml:"capacity_bytes"`
	Seed              int64   `yaml:"seed"` // optional, 0 = fresh seed
}

// WrrQueueDef defines one weighted round robin queue.
type WrrQueueDef struct {
	QueueID uint32 `yaml:"queue_id"`
	Weight  uint32 `yaml:"weight"`
	Aqm     AqmDef `yaml:"aqm"`
}

// DrrQueueDef defines one deficit round robin queue.
type DrrQueueDef struct {
	QueueID      uint32 `yaml:"queue_id"`
	QuantumBytes uint32 `yaml:"quantum_bytes"`
	Aqm          AqmDef `yaml:"aqm"`
}

// HfscClassDef defines one HFSC class; parent_id 0 denotes a root class.
type HfscClassDef struct {
	FlowID     uint64          `yaml:"flow_id"`
	ParentID   uint64          `yaml:"parent_id"`
	RealTime   ServiceCurveDef `yaml:"rt"`
	LinkShare  ServiceCurveDef `yaml:"ls"`
	UpperLimit ServiceCurveDef `yaml:"ul"`
}

// SchedulerDef selects and configures the discipline of one interface.
type SchedulerDef struct {
	Algorithm   string         `yaml:"algorithm"` // strict_priority, wrr, drr, hfsc
	Levels      []AqmDef       `yaml:"levels"`    // strict_priority: one per level, index = level
	WrrQueues   []WrrQueueDef  `yaml:"wrr_queues"`
	DrrQueues   []DrrQueueDef  `yaml:"drr_queues"`
	HfscClasses []HfscClassDef `yaml:"hfsc_classes"`
}

// InterfaceDef defines one shaped interface: its default policy binding, its
// scheduler, and the NATS subject its ingress descriptors arrive on.
type InterfaceDef struct {
	Name            string       `yaml:"name"`
	DefaultPolicyID uint64       `yaml:"default_policy_id"`
	Subject         string       `yaml:"subject"`
	Scheduler       SchedulerDef `yaml:"scheduler"`
}

// PolicyDef defines one node of the policy hierarchy.
type PolicyDef struct {
	ID            uint64 `yaml:"id"`
	ParentID      uint64 `yaml:"parent_id"`
	Name          string `yaml:"name"`
	CirBps        uint64 `yaml:"cir_bps"`
	PirBps        uint64 `yaml:"pir_bps"`
	CbsBytes      uint64 `yaml:"cbs_bytes"`
	EbsBytes      uint64 `yaml:"ebs_bytes"`
	Algorithm     string `yaml:"algorithm"`
	Weight        uint32 `yaml:"weight"`
	PriorityLevel uint8  `yaml:"priority_level"`

	DropOnRed      bool   `yaml:"drop_on_red"`
	PriorityGreen  uint8  `yaml:"priority_green"`
	PriorityYellow uint8  `yaml:"priority_yellow"`
	PriorityRed    uint8  `yaml:"priority_red"`
	QueueIDGreen   uint32 `yaml:"queue_id_green"`
	QueueIDYellow  uint32 `yaml:"queue_id_yellow"`
	QueueIDRed     uint32 `yaml:"queue_id_red"`
}

// EngineConfig holds the data-plane side of the daemon.
type EngineConfig struct {
	Interfaces          []InterfaceDef `yaml:"interfaces"`
	SizeOfPacketChannel int            `yaml:"size_of_packet_channel"`
	StatsPeriod         string         `yaml:"stats_period"` // flow rate observation period
}

// ProbeConfig holds the NATS connection details shared by probe and engine.
type ProbeConfig struct {
	NATSURL string `yaml:"nats_url"`
}

// ClickHouseConfig holds connection settings for the ClickHouse writer and
// querier.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// GobConfig holds settings for the on-disk snapshot writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// WriterDef defines a single stats writer.
type WriterDef struct {
	Type             string           `yaml:"type"` // gob | clickhouse
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
	Gob              GobConfig        `yaml:"gob"`
}

// APIConfig holds the REST query server settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// AlerterRule defines one threshold rule evaluated against the stats
// snapshot.
type AlerterRule struct {
	Name       string  `yaml:"name"`
	Metric     string  `yaml:"metric"` // bytes_dropped, packets_dropped, drop_rate, non_conforming_flows
	Operator   string  `yaml:"operator"`
	Threshold  float64 `yaml:"threshold"`
	PolicyName string  `yaml:"policy_name"` // optional, empty = all policies
}

// AIAnalysisConfig toggles the AI summary attached to alert notifications.
type AIAnalysisConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AlerterConfig holds the alerter settings.
type AlerterConfig struct {
	Enabled       bool             `yaml:"enabled"`
	CheckInterval string           `yaml:"check_interval"`
	Rules         []AlerterRule    `yaml:"rules"`
	AIAnalysis    AIAnalysisConfig `yaml:"ai_analysis"`
}

// SMTPConfig holds the email notifier settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AIConfig holds credentials for the OpenAI-compatible analyzer endpoint.
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Engine   EngineConfig  `yaml:"engine"`
	Policies []PolicyDef   `yaml:"policies"`
	Probe    ProbeConfig   `yaml:"probe"`
	Writers  []WriterDef   `yaml:"writers"`
	API      APIConfig     `yaml:"api"`
	Alerter  AlerterConfig `yaml:"alerter"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	AI       AIConfig      `yaml:"ai"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config
// struct. Validation failures are construction-time errors.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies the fail-fast rules that do not require building the
// actual components: unique ids, known algorithm names, resolvable parents
// and non-empty scheduler configurations.
func (c *Config) Validate() error {
	if len(c.Engine.Interfaces) == 0 {
		return fmt.Errorf("config: no interfaces defined")
	}
	policyIDs := make(map[uint64]bool, len(c.Policies))
	for _, p := range c.Policies {
		if p.ID == 0 {
			return fmt.Errorf("config: policy id 0 is reserved")
		}
		if policyIDs[p.ID] {
			return fmt.Errorf("config: duplicate policy id %d", p.ID)
		}
		policyIDs[p.ID] = true
		if p.PirBps > 0 && p.PirBps < p.CirBps {
			return fmt.Errorf("config: policy %d: pir_bps below cir_bps", p.ID)
		}
	}
	for _, p := range c.Policies {
		if p.ParentID != 0 && !policyIDs[p.ParentID] {
			return fmt.Errorf("config: policy %d references unknown parent %d", p.ID, p.ParentID)
		}
		if p.ParentID == p.ID {
			return fmt.Errorf("config: policy %d cannot be its own parent", p.ID)
		}
	}

	names := make(map[string]bool, len(c.Engine.Interfaces))
	for _, ifc := range c.Engine.Interfaces {
		if ifc.Name == "" {
			return fmt.Errorf("config: interface with empty name")
		}
		if names[ifc.Name] {
			return fmt.Errorf("config: duplicate interface %q", ifc.Name)
		}
		names[ifc.Name] = true
		if !policyIDs[ifc.DefaultPolicyID] {
			return fmt.Errorf("config: interface %q references unknown default policy %d",
				ifc.Name, ifc.DefaultPolicyID)
		}
		if err := ifc.Scheduler.validate(ifc.Name); err != nil {
			return err
		}
	}
	return nil
}

func (s *SchedulerDef) validate(ifaceName string) error {
	switch s.Algorithm {
	case "strict_priority":
		if len(s.Levels) == 0 {
			return fmt.Errorf("config: interface %q: strict_priority needs at least one level", ifaceName)
		}
	case "wrr":
		if len(s.WrrQueues) == 0 {
			return fmt.Errorf("config: interface %q: wrr needs at least one queue", ifaceName)
		}
	case "drr":
		if len(s.DrrQueues) == 0 {
			return fmt.Errorf("config: interface %q: drr needs at least one queue", ifaceName)
		}
	case "hfsc":
		if len(s.HfscClasses) == 0 {
			return fmt.Errorf("config: interface %q: hfsc needs at least one class", ifaceName)
		}
	default:
		return fmt.Errorf("config: interface %q: unknown scheduler algorithm %q", ifaceName, s.Algorithm)
	}
	return nil
}
