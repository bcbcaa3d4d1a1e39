package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NetShaper/internal/ai"
	"NetShaper/internal/alerter"
	"NetShaper/internal/config"
	core "NetShaper/internal/core/model"
	"NetShaper/internal/engine/manager"
	"NetShaper/internal/export"
	"NetShaper/internal/logging"
	"NetShaper/internal/model"
	"NetShaper/internal/notification"
	"NetShaper/internal/probe"
)

var log = logging.NewComponentLogger("shaper-engine")

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	log.Info("starting shaper-engine")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Info("configuration loaded")

	writers := buildWriters(cfg)

	mgr, err := manager.New(cfg, writers, func(iface string, desc *core.PacketDescriptor) {
		log.Debugf("transmit iface=%s flow=%d len=%d prio=%d conformance=%s",
			iface, desc.FlowID, desc.LengthBytes, desc.Priority, desc.Conformance)
	})
	if err != nil {
		log.Fatalf("failed to create manager: %v", err)
	}
	mgr.Start()

	var alrt *alerter.Alerter
	if cfg.Alerter.Enabled {
		alrt = buildAlerter(cfg, mgr)
		if alrt != nil {
			go alrt.Start()
		}
	}

	sub, err := probe.NewSubscriber(cfg.Probe.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer sub.Close()

	for iface, subject := range mgr.Subjects() {
		if subject == "" {
			log.Warnf("interface %q has no subject configured, skipping subscription", iface)
			continue
		}
		ingress, err := mgr.Ingress(iface)
		if err != nil {
			log.Fatalf("interface lookup failed: %v", err)
		}
		if err := sub.Subscribe(subject, func(info *core.PacketInfo) {
			ingress <- info
		}); err != nil {
			log.Fatalf("failed to subscribe to %q: %v", subject, err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutdown signal received")
	if alrt != nil {
		alrt.Stop()
	}
	mgr.Stop()
	log.Info("shutdown complete")
}

// buildWriters creates every enabled stats writer from the configuration.
func buildWriters(cfg *config.Config) []model.StatsWriter {
	var writers []model.StatsWriter
	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}
		interval, err := time.ParseDuration(def.SnapshotInterval)
		if err != nil {
			log.Warnf("invalid snapshot_interval for writer type %q: %v, skipping", def.Type, err)
			continue
		}
		switch def.Type {
		case "gob":
			writers = append(writers, export.NewGobWriter(def.Gob.RootPath, interval))
		case "clickhouse":
			w, err := export.NewClickHouseWriter(def.ClickHouse, interval)
			if err != nil {
				log.Warnf("failed to create writer type %q: %v, skipping", def.Type, err)
				continue
			}
			writers = append(writers, w)
		default:
			log.Warnf("unknown writer type %q in config, skipping", def.Type)
		}
	}
	return writers
}

// buildAlerter wires the notifier and the optional AI analyzer into an
// alerter fed by the manager's snapshots.
func buildAlerter(cfg *config.Config, mgr *manager.Manager) *alerter.Alerter {
	if cfg.SMTP.Host == "" {
		log.Warn("alerter enabled but no notifier configured; alerter will not run")
		return nil
	}
	notifier := notification.NewEmailNotifier(cfg.SMTP)

	var analyzer model.Analyzer
	if cfg.Alerter.AIAnalysis.Enabled {
		a, err := ai.NewReportAnalyzer(&cfg.AI)
		if err != nil {
			log.Warnf("AI analysis enabled but analyzer failed to initialize: %v", err)
		} else {
			analyzer = a
		}
	}

	alrt, err := alerter.New(&cfg.Alerter, mgr.Snapshot, notifier, analyzer)
	if err != nil {
		log.Warnf("failed to create alerter: %v", err)
		return nil
	}
	log.Info("alerter enabled and initialized")
	return alrt
}
