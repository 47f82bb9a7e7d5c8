package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "grafana", "datawise_slo_dashboard.json")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dashboard file: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}

	title, _ := decoded["title"].(string)
	if strings.TrimSpace(title) == "" {
		t.Fatal("dashboard title is required")
	}
	panels, ok := decoded["panels"].([]any)
	if !ok || len(panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "datawise_rules.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	text := string(content)

	requiredAlerts := []string{
		"DatawiseQueryLatencyP95High",
		"DatawiseQuerySuccessRatioLow",
		"DatawiseRepairFailuresDetected",
		"DatawiseGuardRejectionsSpike",
		"DatawiseCompletionFailureRatioHigh",
		"DatawiseCompletionUnavailable",
		"DatawiseHTTPErrorRateHigh",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}

	requiredMetrics := []string{
		"datawise:slo_query_latency_ms_p95",
		"datawise:slo_query_success_ratio_15m",
		"datawise:slo_query_repair_failures_15m",
		"datawise:slo_guard_rejections_15m",
		"datawise:slo_completion_failure_ratio_15m",
		"datawise:slo_completion_unavailable_15m",
		"datawise:slo_http_error_rate_5m",
	}
	for _, metricName := range requiredMetrics {
		matched, err := regexp.MatchString(regexp.QuoteMeta(metricName), text)
		if err != nil {
			t.Fatalf("regexp error for metric %q: %v", metricName, err)
		}
		if !matched {
			t.Fatalf("rules missing metric reference %q", metricName)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read scrape example: %v", err)
	}
	text := string(content)

	if !strings.Contains(text, "metrics_path: /v1/metrics") {
		t.Fatal("scrape example missing datawise metrics path")
	}
	if !strings.Contains(text, "datawise_rules.yaml") {
		t.Fatal("scrape example missing datawise rule file reference")
	}
	if !strings.Contains(text, "datawise_recording_rules.yaml") {
		t.Fatal("scrape example missing datawise recording rule file reference")
	}
	if !strings.Contains(text, "job_name: datawise-api") {
		t.Fatal("scrape example missing datawise-api job")
	}
}

func TestPrometheusRecordingRulesContainExpectedRecords(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "datawise_recording_rules.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recording rules file: %v", err)
	}
	text := string(content)

	requiredRecords := []string{
		"datawise:slo_query_latency_ms_p95",
		"datawise:slo_query_success_ratio_15m",
		"datawise:slo_query_repair_failures_15m",
		"datawise:slo_guard_rejections_15m",
		"datawise:slo_completion_failure_ratio_15m",
		"datawise:slo_completion_unavailable_15m",
		"datawise:slo_http_error_rate_5m",
		"datawise:slo_http_latency_seconds_p95",
	}
	for _, recordName := range requiredRecords {
		if !strings.Contains(text, "record: "+recordName) {
			t.Fatalf("recording rules missing record %q", recordName)
		}
	}
}

func TestAlertmanagerExampleContainsSeverityRouting(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "alertmanager", "alertmanager.example.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read alertmanager example: %v", err)
	}
	text := string(content)

	requiredTokens := []string{
		"receiver: datawise-default",
		"severity=\"critical\"",
		"severity=\"warning\"",
		"name: datawise-critical",
		"name: datawise-warning",
		"inhibit_rules:",
		"group_by: [alertname, service, severity]",
	}
	for _, token := range requiredTokens {
		if !strings.Contains(text, token) {
			t.Fatalf("alertmanager example missing token %q", token)
		}
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
