package manager

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"NetShaper/internal/config"
	core "NetShaper/internal/core/model"
	"NetShaper/internal/dataplane"
	"NetShaper/internal/factory"
	"NetShaper/internal/logging"
	"NetShaper/internal/model"
	"NetShaper/internal/pipeline"
	"NetShaper/internal/scheduler"
	"NetShaper/internal/shaping"
)

var log = logging.NewComponentLogger("engine.manager")

const defaultPacketChannelSize = 1024

// TransmitFunc receives every descriptor the schedulers release, in service
// order, tagged with its interface.
type TransmitFunc func(iface string, desc *core.PacketDescriptor)

// shapedInterface bundles one interface's pipeline with its ingress channel.
// Enqueue and dequeue run in the interface's single worker; the mutex only
// fences out-of-band stats snapshots.
type shapedInterface struct {
	name     string
	tree     *shaping.PolicyTree
	table    *dataplane.FlowTable
	pipe     *pipeline.PacketPipeline
	subject  string
	ingress  chan *core.PacketInfo
	mu       sync.Mutex
}

// Manager owns one shaping pipeline per configured interface plus the
// snapshotting machinery that feeds the stats writers.
type Manager struct {
	interfaces []*shapedInterface
	writers    []model.StatsWriter
	transmit   TransmitFunc

	statsPeriod time.Duration

	done          chan struct{}
	workerWg      sync.WaitGroup
	snapshotterWg sync.WaitGroup
	ratePumpWg    sync.WaitGroup
}

// New builds the pipelines for every configured interface. Each interface
// gets its own policy tree, flow table and scheduler; nothing mutable is
// shared across interfaces.
func New(cfg *config.Config, writers []model.StatsWriter, transmit TransmitFunc) (*Manager, error) {
	statsPeriod := 10 * time.Second
	if cfg.Engine.StatsPeriod != "" {
		parsed, err := time.ParseDuration(cfg.Engine.StatsPeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid stats_period: %w", err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("stats_period must be positive")
		}
		statsPeriod = parsed
	}

	chanSize := cfg.Engine.SizeOfPacketChannel
	if chanSize <= 0 {
		chanSize = defaultPacketChannelSize
	}

	m := &Manager{
		writers:     writers,
		transmit:    transmit,
		statsPeriod: statsPeriod,
		done:        make(chan struct{}),
	}

	for _, ifc := range cfg.Engine.Interfaces {
		tree, err := factory.NewPolicyTree(cfg)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", ifc.Name, err)
		}
		sched, err := factory.NewScheduler(ifc.Scheduler)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", ifc.Name, err)
		}

		table := dataplane.NewFlowTable()
		classifier := dataplane.NewFlowClassifier(table, core.PolicyID(ifc.DefaultPolicyID))
		shaper := shaping.NewTrafficShaper(classifier, tree)

		m.interfaces = append(m.interfaces, &shapedInterface{
			name:    ifc.Name,
			tree:    tree,
			table:   table,
			pipe:    pipeline.New(classifier, shaper, sched),
			subject: ifc.Subject,
			ingress: make(chan *core.PacketInfo, chanSize),
		})
	}
	return m, nil
}

// Start launches one worker per interface, the flow-rate pump, and one
// snapshotter per writer.
func (m *Manager) Start() {
	for _, si := range m.interfaces {
		m.workerWg.Add(1)
		go m.worker(si)
	}
	log.Infof("started %d interface workers", len(m.interfaces))

	m.ratePumpWg.Add(1)
	go m.ratePump()

	for _, w := range m.writers {
		m.snapshotterWg.Add(1)
		go m.runSnapshotter(w)
		log.Infof("started snapshotter with interval %s", w.GetInterval())
	}
}

// Stop closes the ingress channels, waits for the workers to drain, takes a
// final snapshot for every writer, and stops the background loops.
func (m *Manager) Stop() {
	for _, si := range m.interfaces {
		close(si.ingress)
	}
	m.workerWg.Wait()

	close(m.done)
	m.ratePumpWg.Wait()
	m.snapshotterWg.Wait()
	log.Info("manager stopped")
}

// Ingress returns the packet channel of the named interface.
func (m *Manager) Ingress(iface string) (chan<- *core.PacketInfo, error) {
	for _, si := range m.interfaces {
		if si.name == iface {
			return si.ingress, nil
		}
	}
	return nil, fmt.Errorf("unknown interface %q", iface)
}

// Subjects returns the interface-name-to-NATS-subject mapping from the
// configuration.
func (m *Manager) Subjects() map[string]string {
	out := make(map[string]string, len(m.interfaces))
	for _, si := range m.interfaces {
		out[si.name] = si.subject
	}
	return out
}

// worker is the single logical data-plane worker of one interface: handle
// one ingress packet, then release everything the scheduler considers due.
func (m *Manager) worker(si *shapedInterface) {
	defer m.workerWg.Done()
	for info := range si.ingress {
		si.mu.Lock()
		_, err := si.pipe.HandleIncoming(info.FiveTuple, uint32(info.Length), info.Payload)
		if err != nil {
			si.mu.Unlock()
			log.Errorf("interface %s: enqueue failed: %v", si.name, err)
			continue
		}
		for {
			desc, err := si.pipe.NextToTransmit()
			if err != nil {
				log.Errorf("interface %s: dequeue failed: %v", si.name, err)
				break
			}
			if desc == nil {
				break
			}
			if m.transmit != nil {
				m.transmit(si.name, desc)
			}
		}
		si.mu.Unlock()
	}
}

// ratePump periodically converts each flow's accumulated byte count into an
// observed rate.
func (m *Manager) ratePump() {
	defer m.ratePumpWg.Done()
	ticker := time.NewTicker(m.statsPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			seconds := m.statsPeriod.Seconds()
			for _, si := range m.interfaces {
				for _, fc := range si.table.Snapshot() {
					id := fc.FlowID
					si.table.Update(id, func(fc *core.FlowContext) {
						fc.CurrentRateBps = uint64(float64(fc.AccumulatedBytesInPeriod*8) / seconds)
						fc.AccumulatedBytesInPeriod = 0
					})
				}
			}
		case <-m.done:
			return
		}
	}
}

// runSnapshotter drives one writer on its configured interval.
func (m *Manager) runSnapshotter(w model.StatsWriter) {
	defer m.snapshotterWg.Done()
	interval := w.GetInterval()
	if interval <= 0 {
		log.Warnf("invalid snapshot interval %s, snapshotter will not run", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.writeSnapshot(w)
		case <-m.done:
			m.writeSnapshot(w)
			return
		}
	}
}

func (m *Manager) writeSnapshot(w model.StatsWriter) {
	snap := m.Snapshot()
	timestamp := snap.Timestamp.Format("2006-01-02_15-04-05")
	if err := w.Write(snap, timestamp); err != nil {
		log.Errorf("error writing snapshot: %v", err)
	}
}

// Snapshot collects the observable counters of every interface: per-policy,
// per-flow and per-queue. The result is a consistent copy safe to hand to
// writers and the alerter.
func (m *Manager) Snapshot() *model.StatsSnapshot {
	snap := &model.StatsSnapshot{Timestamp: time.Now()}

	for _, si := range m.interfaces {
		si.mu.Lock()
		si.tree.Range(func(p *shaping.ShapingPolicy) {
			snap.Policies = append(snap.Policies, model.PolicyRow{
				Interface: si.name,
				PolicyID:  p.ID,
				Name:      p.Name,
				Stats:     p.Stats,
			})
		})
		snap.Queues = append(snap.Queues, queueRows(si.name, si.pipe.Scheduler())...)
		si.mu.Unlock()

		for _, fc := range si.table.Snapshot() {
			snap.Flows = append(snap.Flows, model.FlowRow{
				Interface:      si.name,
				FlowID:         fc.FlowID,
				PolicyID:       fc.PolicyID,
				QueueID:        fc.QueueID,
				CurrentRateBps: fc.CurrentRateBps,
				SLAStatus:      fc.SLAStatus,
				Stats:          fc.Stats,
			})
		}
	}
	sort.Slice(snap.Flows, func(i, j int) bool {
		if snap.Flows[i].Interface != snap.Flows[j].Interface {
			return snap.Flows[i].Interface < snap.Flows[j].Interface
		}
		return snap.Flows[i].FlowID < snap.Flows[j].FlowID
	})
	return snap
}

// queueRows extracts per-queue observability from whichever discipline the
// interface runs.
func queueRows(iface string, sched scheduler.Scheduler) []model.QueueRow {
	var rows []model.QueueRow

	appendQueue := func(selector uint64, q *scheduler.RedAqmQueue) {
		rows = append(rows, model.QueueRow{
			Interface:        iface,
			Selector:         selector,
			CurrentBytes:     q.ByteSize(),
			CurrentPackets:   q.PacketCount(),
			AverageQueueSize: q.AverageQueueSize(),
			TotalEnqueues:    q.TotalEnqueues(),
			TotalDrops:       q.TotalDrops(),
		})
	}

	switch s := sched.(type) {
	case *scheduler.StrictPriorityScheduler:
		for level := 0; level < s.NumLevels(); level++ {
			if q, err := s.Queue(uint8(level)); err == nil {
				appendQueue(uint64(level), q)
			}
		}
	case *scheduler.WrrScheduler:
		for _, id := range s.QueueIDs() {
			if q, err := s.Queue(id); err == nil {
				appendQueue(uint64(id), q)
			}
		}
	case *scheduler.DrrScheduler:
		for _, id := range s.QueueIDs() {
			if q, err := s.Queue(id); err == nil {
				appendQueue(uint64(id), q)
			}
		}
	case *scheduler.HfscScheduler:
		for _, id := range s.ClassIDs() {
			size, err := s.QueueSize(id)
			if err != nil {
				continue
			}
			rows = append(rows, model.QueueRow{
				Interface:      iface,
				Selector:       uint64(id),
				CurrentPackets: size,
			})
		}
	}
	return rows
}
