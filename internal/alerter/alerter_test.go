package alerter

import (
	"strings"
	"testing"
	"time"

	"NetShaper/internal/config"
	core "NetShaper/internal/core/model"
	"NetShaper/internal/model"
)

func testSnapshot() *model.StatsSnapshot {
	return &model.StatsSnapshot{
		Timestamp: time.Now(),
		Policies: []model.PolicyRow{
			{
				Interface: "eth0", PolicyID: 1, Name: "business",
				Stats: core.PolicyStatistics{PacketsProcessed: 90, PacketsDropped: 10, BytesDropped: 15000},
			},
			{
				Interface: "eth0", PolicyID: 2, Name: "bulk",
				Stats: core.PolicyStatistics{PacketsProcessed: 100},
			},
		},
		Flows: []model.FlowRow{
			{Interface: "eth0", FlowID: 1, SLAStatus: core.SLANonConforming},
			{Interface: "eth0", FlowID: 2, SLAStatus: core.SLAConforming},
			{Interface: "eth0", FlowID: 3, SLAStatus: core.SLANonConforming},
		},
	}
}

func TestEvaluateRuleDropRate(t *testing.T) {
	rule := config.AlerterRule{
		Name: "high drop rate", Metric: "drop_rate", Operator: ">", Threshold: 0.05,
	}
	msgs := evaluateRule(rule, testSnapshot())
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (only the business policy drops)", len(msgs))
	}
	if !strings.Contains(msgs[0], "business") {
		t.Errorf("message does not name the triggering policy: %s", msgs[0])
	}
}

func TestEvaluateRulePolicyFilter(t *testing.T) {
	rule := config.AlerterRule{
		Name: "bulk drops", Metric: "packets_dropped", Operator: ">", Threshold: 0,
		PolicyName: "bulk",
	}
	if msgs := evaluateRule(rule, testSnapshot()); len(msgs) != 0 {
		t.Fatalf("rule scoped to a clean policy still triggered: %v", msgs)
	}
}

func TestEvaluateRuleNonConformingFlows(t *testing.T) {
	rule := config.AlerterRule{
		Name: "sla", Metric: "non_conforming_flows", Operator: ">=", Threshold: 2,
	}
	msgs := evaluateRule(rule, testSnapshot())
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (two non-conforming flows)", len(msgs))
	}
}

func TestCheckOperators(t *testing.T) {
	cases := []struct {
		value, threshold float64
		op               string
		want             bool
	}{
		{5, 3, ">", true},
		{3, 3, ">", false},
		{2, 3, "<", true},
		{3, 3, "=", true},
		{3, 3, ">=", true},
		{3, 3, "<=", true},
		{4, 3, "<=", false},
		{1, 1, "??", false},
	}
	for _, tc := range cases {
		if got := check(tc.value, tc.threshold, tc.op); got != tc.want {
			t.Errorf("check(%v %s %v) = %v, want %v", tc.value, tc.op, tc.threshold, got, tc.want)
		}
	}
}

type fakeNotifier struct {
	subjects []string
	bodies   []string
}

func (n *fakeNotifier) Send(subject, body string) error {
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return nil
}

func TestAlerterSendsConsolidatedNotification(t *testing.T) {
	notifier := &fakeNotifier{}
	a, err := New(&config.AlerterConfig{
		CheckInterval: "1h",
		Rules: []config.AlerterRule{
			{Name: "drops", Metric: "packets_dropped", Operator: ">", Threshold: 5},
			{Name: "sla", Metric: "non_conforming_flows", Operator: ">", Threshold: 1},
		},
	}, func() *model.StatsSnapshot { return testSnapshot() }, notifier, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	a.evaluate()
	if len(notifier.subjects) != 1 {
		t.Fatalf("sent %d notifications, want 1 consolidated", len(notifier.subjects))
	}
	if !strings.Contains(notifier.subjects[0], "2 Triggered") {
		t.Errorf("subject does not carry the trigger count: %s", notifier.subjects[0])
	}
	if !strings.Contains(notifier.bodies[0], "business") {
		t.Errorf("body does not name the triggering policy")
	}
}

func TestAlerterQuietWhenNothingTriggers(t *testing.T) {
	notifier := &fakeNotifier{}
	a, err := New(&config.AlerterConfig{
		CheckInterval: "1h",
		Rules: []config.AlerterRule{
			{Name: "drops", Metric: "packets_dropped", Operator: ">", Threshold: 1000},
		},
	}, func() *model.StatsSnapshot { return testSnapshot() }, notifier, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	a.evaluate()
	if len(notifier.subjects) != 0 {
		t.Fatalf("notification sent although nothing triggered")
	}
}

func TestAlerterRequiresNotifier(t *testing.T) {
	_, err := New(&config.AlerterConfig{CheckInterval: "1m"}, func() *model.StatsSnapshot { return nil }, nil, nil)
	if err == nil {
		t.Fatalf("expected a nil notifier to be rejected")
	}
}
