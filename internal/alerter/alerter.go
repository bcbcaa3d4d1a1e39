package alerter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"NetShaper/internal/config"
	core "NetShaper/internal/core/model"
	"NetShaper/internal/logging"
	"NetShaper/internal/model"

	"github.com/gomarkdown/markdown"
)

var log = logging.NewComponentLogger("alerter")

// SnapshotFunc supplies the alerter with a fresh stats snapshot.
type SnapshotFunc func() *model.StatsSnapshot

// Alerter periodically evaluates the configured rules against the engine's
// stats snapshot and sends a consolidated notification when any trigger.
type Alerter struct {
	rules         []config.AlerterRule
	snapshot      SnapshotFunc
	notifier      model.Notifier
	analyzer      model.Analyzer // optional
	checkInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates an Alerter. The analyzer may be nil; the notifier must not.
func New(cfg *config.AlerterConfig, snapshot SnapshotFunc, notifier model.Notifier, analyzer model.Analyzer) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}
	if notifier == nil {
		return nil, fmt.Errorf("alerter requires a notifier")
	}
	return &Alerter{
		rules:         cfg.Rules,
		snapshot:      snapshot,
		notifier:      notifier,
		analyzer:      analyzer,
		checkInterval: interval,
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the periodic evaluation of alert rules.
func (a *Alerter) Start() {
	log.Info("alerter started")

	a.wg.Add(1)
	defer a.wg.Done()

	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.evaluate()
		case <-a.stopChan:
			return
		}
	}
}

// Stop gracefully stops the evaluation loop and runs one final check.
func (a *Alerter) Stop() {
	log.Info("stopping alerter")
	close(a.stopChan)
	a.wg.Wait()
	a.evaluate()
}

// evaluate runs every rule over the current snapshot and notifies when
// something triggered.
func (a *Alerter) evaluate() {
	snap := a.snapshot()
	if snap == nil {
		return
	}

	var messages []string
	for _, rule := range a.rules {
		messages = append(messages, evaluateRule(rule, snap)...)
	}
	if len(messages) == 0 {
		return
	}
	log.Infof("alerter evaluation completed, %d alert(s) triggered", len(messages))

	body := "<h1>NetShaper Alert Summary</h1>" +
		"<p>The following alerts were triggered during the last check:</p><hr>" +
		strings.Join(messages, "<hr>")

	if a.analyzer != nil {
		assessment, err := a.getAnalysis(strings.Join(messages, "\n"))
		if err != nil {
			log.Errorf("failed to get AI analysis: %v", err)
		} else if assessment != "" {
			html := markdown.ToHTML([]byte(assessment), nil, nil)
			body += "<hr><h2>AI-Powered Analysis</h2>" + string(html)
		}
	}

	subject := fmt.Sprintf("NetShaper Alert Summary (%d Triggered)", len(messages))
	if err := a.notifier.Send(subject, body); err != nil {
		log.Errorf("failed to send consolidated alert notification: %v", err)
	} else {
		log.Info("consolidated alert notification sent")
	}
}

// evaluateRule returns one formatted message per policy (or one global
// message) the rule triggers on.
func evaluateRule(rule config.AlerterRule, snap *model.StatsSnapshot) []string {
	var triggered []string

	switch rule.Metric {
	case "bytes_dropped", "packets_dropped", "drop_rate":
		for _, row := range snap.Policies {
			if rule.PolicyName != "" && row.Name != rule.PolicyName {
				continue
			}
			value, unit := policyMetric(rule.Metric, row)
			if check(value, rule.Threshold, rule.Operator) {
				triggered = append(triggered, formatAlert(rule, fmt.Sprintf("%s/%s", row.Interface, row.Name), value, unit))
			}
		}
	case "non_conforming_flows":
		count := 0
		for _, row := range snap.Flows {
			if row.SLAStatus == core.SLANonConforming {
				count++
			}
		}
		value := float64(count)
		if check(value, rule.Threshold, rule.Operator) {
			triggered = append(triggered, formatAlert(rule, "all interfaces", value, "flows"))
		}
	default:
		log.Warnf("unknown metric %q in alerter rule %q", rule.Metric, rule.Name)
	}
	return triggered
}

func policyMetric(metric string, row model.PolicyRow) (float64, string) {
	switch metric {
	case "bytes_dropped":
		return float64(row.Stats.BytesDropped), "bytes"
	case "packets_dropped":
		return float64(row.Stats.PacketsDropped), "packets"
	case "drop_rate":
		total := row.Stats.PacketsProcessed + row.Stats.PacketsDropped
		if total == 0 {
			return 0, "ratio"
		}
		return float64(row.Stats.PacketsDropped) / float64(total), "ratio"
	}
	return 0, ""
}

func formatAlert(rule config.AlerterRule, scope string, value float64, unit string) string {
	return fmt.Sprintf("<h3>Alert: %s</h3>"+
		"<ul>"+
		"<li><b>Scope:</b> <code>%s</code></li>"+
		"<li><b>Metric:</b> <code>%s</code></li>"+
		"<li><b>Condition:</b> <code>%s %.2f</code></li>"+
		"<li><b>Observed Value:</b> <code>%.2f %s</code></li>"+
		"</ul>",
		rule.Name, scope, rule.Metric, rule.Operator, rule.Threshold, value, unit)
}

// check compares a value against a threshold based on an operator.
func check(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "=":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		log.Warnf("unknown operator %q in alerter rule", operator)
		return false
	}
}

// getAnalysis asks the analyzer for a prose assessment of the alert report.
func (a *Alerter) getAnalysis(report string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	out, err := a.analyzer.AnalyzeReport(ctx, report)
	if err != nil {
		return "", fmt.Errorf("AI analysis failed: %w", err)
	}
	return out, nil
}
