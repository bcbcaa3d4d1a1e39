package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"NetShaper/internal/config"
	"NetShaper/internal/logging"
	"NetShaper/internal/probe"
	"NetShaper/internal/protocol"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

var log = logging.NewComponentLogger("shaper-probe")

const (
	snapshotLen int32 = 1600
	promiscuous       = true
	timeout           = pcap.BlockForever
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Interface to capture packets from (must match a configured interface).")
	flag.Parse()

	if *iface == "" {
		log.Error("-iface flag is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	subject := ""
	for _, def := range cfg.Engine.Interfaces {
		if def.Name == *iface {
			subject = def.Subject
			break
		}
	}
	if subject == "" {
		log.Fatalf("interface %q is not configured with a subject", *iface)
	}

	pub, err := probe.NewPublisher(cfg.Probe.NATSURL, subject)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	handle, err := pcap.OpenLive(*iface, snapshotLen, promiscuous, timeout)
	if err != nil {
		log.Fatalf("error opening device %s: %v", *iface, err)
	}
	defer handle.Close()

	log.Infof("capture started on %s, publishing to %q", *iface, subject)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
		published := 0
		for packet := range packetSource.Packets() {
			info, err := protocol.ParsePacket(packet.Data())
			if err != nil {
				continue // skip non-IP packets
			}
			if meta := packet.Metadata(); meta != nil {
				info.Timestamp = meta.Timestamp
			}
			if err := pub.Publish(info); err != nil {
				log.Errorf("failed to publish packet: %v", err)
				continue
			}
			published++
			if published%1000 == 0 {
				log.Infof("%d packets published", published)
			}
		}
	}()

	<-sigChan
	log.Info("shutdown signal received, cleaning up")
}
