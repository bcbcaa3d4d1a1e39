package factory

import (
	"fmt"

	"NetShaper/internal/config"
	"NetShaper/internal/core/model"
	"NetShaper/internal/scheduler"
	"NetShaper/internal/shaping"
)

// SchedulerFactory builds a scheduler from the interface's scheduler
// definition.
type SchedulerFactory func(def config.SchedulerDef) (scheduler.Scheduler, error)

// registry maps scheduler algorithm names to their factory functions.
var registry = make(map[string]SchedulerFactory)

// RegisterScheduler registers a new scheduler algorithm with its factory
// function.
func RegisterScheduler(name string, factory SchedulerFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("scheduler algorithm '%s' already registered", name))
	}
	registry[name] = factory
}

func init() {
	RegisterScheduler("strict_priority", func(def config.SchedulerDef) (scheduler.Scheduler, error) {
		params := make([]scheduler.RedAqmParameters, len(def.Levels))
		for i, l := range def.Levels {
			params[i] = aqmParams(l)
		}
		return scheduler.NewStrictPriorityScheduler(params)
	})

	RegisterScheduler("wrr", func(def config.SchedulerDef) (scheduler.Scheduler, error) {
		configs := make([]scheduler.WrrQueueConfig, len(def.WrrQueues))
		for i, q := range def.WrrQueues {
			configs[i] = scheduler.WrrQueueConfig{
				ID:     model.QueueID(q.QueueID),
				Weight: q.Weight,
				AQM:    aqmParams(q.Aqm),
			}
		}
		return scheduler.NewWrrScheduler(configs)
	})

	RegisterScheduler("drr", func(def config.SchedulerDef) (scheduler.Scheduler, error) {
		configs := make([]scheduler.DrrQueueConfig, len(def.DrrQueues))
		for i, q := range def.DrrQueues {
			configs[i] = scheduler.DrrQueueConfig{
				ID:           model.QueueID(q.QueueID),
				QuantumBytes: q.QuantumBytes,
				AQM:          aqmParams(q.Aqm),
			}
		}
		return scheduler.NewDrrScheduler(configs)
	})

	RegisterScheduler("hfsc", func(def config.SchedulerDef) (scheduler.Scheduler, error) {
		configs := make([]scheduler.HfscFlowConfig, len(def.HfscClasses))
		for i, cl := range def.HfscClasses {
			configs[i] = scheduler.HfscFlowConfig{
				ID:         model.FlowID(cl.FlowID),
				ParentID:   model.FlowID(cl.ParentID),
				RealTime:   scheduler.ServiceCurve{RateBps: cl.RealTime.RateBps, DelayUs: cl.RealTime.DelayUs},
				LinkShare:  scheduler.ServiceCurve{RateBps: cl.LinkShare.RateBps, DelayUs: cl.LinkShare.DelayUs},
				UpperLimit: scheduler.ServiceCurve{RateBps: cl.UpperLimit.RateBps, DelayUs: cl.UpperLimit.DelayUs},
			}
		}
		return scheduler.NewHfscScheduler(configs)
	})
}

// NewScheduler creates the scheduler an interface definition asks for.
func NewScheduler(def config.SchedulerDef) (scheduler.Scheduler, error) {
	factory, ok := registry[def.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unknown scheduler algorithm: '%s'", def.Algorithm)
	}
	return factory(def)
}

// NewPolicyTree builds the shared policy tree from the configured hierarchy.
// Parents are inserted before children regardless of file order.
func NewPolicyTree(cfg *config.Config) (*shaping.PolicyTree, error) {
	tree := shaping.NewPolicyTree()

	pending := make([]config.PolicyDef, len(cfg.Policies))
	copy(pending, cfg.Policies)

	for len(pending) > 0 {
		progressed := false
		remaining := pending[:0]
		for _, def := range pending {
			parent := model.PolicyID(def.ParentID)
			if parent != model.NoParentPolicyID {
				if _, ok := tree.Lookup(parent); !ok {
					remaining = append(remaining, def)
					continue
				}
			}
			p, err := buildPolicy(def)
			if err != nil {
				return nil, err
			}
			if err := tree.Insert(p); err != nil {
				return nil, err
			}
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("policy hierarchy contains an unresolvable parent cycle")
		}
		pending = remaining
	}
	return tree, nil
}

func buildPolicy(def config.PolicyDef) (*shaping.ShapingPolicy, error) {
	algorithm, err := shaping.ParseAlgorithm(def.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("policy %d: %w", def.ID, err)
	}
	p, err := shaping.NewShapingPolicy(
		model.PolicyID(def.ID), model.PolicyID(def.ParentID), def.Name,
		def.CirBps, def.PirBps, def.CbsBytes, def.EbsBytes,
		algorithm, def.Weight, def.PriorityLevel)
	if err != nil {
		return nil, err
	}
	p.DropOnRed = def.DropOnRed
	p.Green = shaping.ConformanceTarget{Priority: def.PriorityGreen, QueueID: model.QueueID(def.QueueIDGreen)}
	p.Yellow = shaping.ConformanceTarget{Priority: def.PriorityYellow, QueueID: model.QueueID(def.QueueIDYellow)}
	p.Red = shaping.ConformanceTarget{Priority: def.PriorityRed, QueueID: model.QueueID(def.QueueIDRed)}
	return p, nil
}

func aqmParams(def config.AqmDef) scheduler.RedAqmParameters {
	return scheduler.RedAqmParameters{
		MinThresholdBytes: def.MinThresholdBytes,
		MaxThresholdBytes: def.MaxThresholdBytes,
		MaxProbability:    def.MaxProbability,
		EwmaWeight:        def.EwmaWeight,
		CapacityBytes:     def.CapacityBytes,
		Seed:              def.Seed,
	}
}
