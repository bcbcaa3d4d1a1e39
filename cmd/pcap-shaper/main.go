package main

import (
	"flag"
	"os"
	"time"

	"NetShaper/internal/config"
	core "NetShaper/internal/core/model"
	"NetShaper/internal/dataplane"
	"NetShaper/internal/factory"
	"NetShaper/internal/logging"
	"NetShaper/internal/pipeline"
	"NetShaper/internal/shaping"
	"NetShaper/pkg/pcap"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// egressCaptureInfo stamps an egress packet for the output capture.
func egressCaptureInfo(length int) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: length,
		Length:        length,
	}
}

var log = logging.NewComponentLogger("pcap-shaper")

// pcap-shaper replays a capture file through one shaping pipeline and
// reports what the shaper and schedulers did with it. With -out, the shaped
// egress is written back out as a pcap file in service order.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	pcapPath := flag.String("file", "", "Path to the pcap file to replay (required).")
	ifaceName := flag.String("iface", "", "Configured interface to replay through (default: first).")
	outPath := flag.String("out", "", "Optional path for the shaped egress pcap.")
	flag.Parse()

	if *pcapPath == "" {
		log.Error("-file flag is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ifaceDef := cfg.Engine.Interfaces[0]
	if *ifaceName != "" {
		found := false
		for _, def := range cfg.Engine.Interfaces {
			if def.Name == *ifaceName {
				ifaceDef = def
				found = true
				break
			}
		}
		if !found {
			log.Fatalf("interface %q is not configured", *ifaceName)
		}
	}

	tree, err := factory.NewPolicyTree(cfg)
	if err != nil {
		log.Fatalf("failed to build policy tree: %v", err)
	}
	sched, err := factory.NewScheduler(ifaceDef.Scheduler)
	if err != nil {
		log.Fatalf("failed to build scheduler: %v", err)
	}

	table := dataplane.NewFlowTable()
	classifier := dataplane.NewFlowClassifier(table, core.PolicyID(ifaceDef.DefaultPolicyID))
	shaper := shaping.NewTrafficShaper(classifier, tree)
	pipe := pipeline.New(classifier, shaper, sched)

	reader, err := pcap.NewReader(*pcapPath)
	if err != nil {
		log.Fatalf("failed to open pcap file: %v", err)
	}
	defer reader.Close()

	var egressWriter *pcapgo.Writer
	if *outPath != "" {
		outFile, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("failed to create output file: %v", err)
		}
		defer outFile.Close()
		egressWriter = pcapgo.NewWriter(outFile)
		if err := egressWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
			log.Fatalf("failed to write pcap header: %v", err)
		}
	}

	packets := make(chan *core.PacketInfo, 100)
	go reader.ReadPackets(packets)

	var ingress, enqueued, transmitted uint64
	colorCounts := make(map[core.Conformance]uint64)

	drain := func() {
		for {
			desc, err := pipe.NextToTransmit()
			if err != nil {
				log.Errorf("dequeue failed: %v", err)
				return
			}
			if desc == nil {
				return
			}
			transmitted++
			colorCounts[desc.Conformance]++
			if egressWriter != nil && len(desc.Payload) > 0 {
				ci := egressCaptureInfo(len(desc.Payload))
				if err := egressWriter.WritePacket(ci, desc.Payload); err != nil {
					log.Errorf("failed to write egress packet: %v", err)
				}
			}
		}
	}

	for info := range packets {
		ingress++
		ok, err := pipe.HandleIncoming(info.FiveTuple, uint32(info.Length), info.Payload)
		if err != nil {
			log.Errorf("enqueue failed: %v", err)
			continue
		}
		if ok {
			enqueued++
		}
		drain()
	}
	drain()

	log.Infof("replay complete on %q: %d ingress, %d enqueued, %d transmitted",
		ifaceDef.Name, ingress, enqueued, transmitted)
	log.Infof("egress conformance: GREEN=%d YELLOW=%d RED=%d",
		colorCounts[core.ConformanceGreen], colorCounts[core.ConformanceYellow], colorCounts[core.ConformanceRed])
	log.Infof("flows observed: %d", classifier.Len())
}
