package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"firestige.xyz/vrtbridge/internal/config"
)

const metricPrefix = "vrt_bridge_"

var metricsURL string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show runtime statistics",
	Long: `Scrape the bridge's metrics endpoint and print its counters.

Shows: received pairs, sent packets and bytes per kind, queue depth and
drops, throughput and output errors. Without --url the endpoint is taken
from the metrics section of the configuration file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url := metricsURL
		if url == "" {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("no --url given and config unreadable: %w", err)
			}
			if !cfg.Metrics.Enabled {
				return fmt.Errorf("metrics are disabled in %s", configFile)
			}
			url = scrapeURL(cfg.Metrics.Listen, cfg.Metrics.Path)
		}
		return runStats(cmd.Context(), url, cmd.OutOrStdout())
	},
}

func init() {
	statsCmd.Flags().StringVar(&metricsURL, "url", "", "metrics endpoint, e.g. http://127.0.0.1:9091/metrics")
}

// scrapeURL turns a listen address into a URL reachable from this host.
func scrapeURL(listen, path string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + path
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + path
}

func runStats(ctx context.Context, url string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to query stats: %s", resp.Status)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse metrics: %w", err)
	}

	names := make([]string, 0, len(families))
	for name := range families {
		if strings.HasPrefix(name, metricPrefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		fmt.Fprintln(out, "no bridge metrics exposed yet")
		return nil
	}

	for _, name := range names {
		mf := families[name]
		for _, m := range mf.GetMetric() {
			fmt.Fprintf(out, "%-45s %-22s %s\n", strings.TrimPrefix(name, metricPrefix), labels(m), value(mf.GetType(), m))
		}
	}
	return nil
}

func labels(m *dto.Metric) string {
	pairs := make([]string, 0, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		pairs = append(pairs, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func value(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return fmt.Sprintf("%g", m.GetCounter().GetValue())
	case dto.MetricType_GAUGE:
		return fmt.Sprintf("%g", m.GetGauge().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		if h.GetSampleCount() == 0 {
			return "count=0"
		}
		return fmt.Sprintf("count=%d mean=%.6g", h.GetSampleCount(), h.GetSampleSum()/float64(h.GetSampleCount()))
	default:
		return fmt.Sprintf("%g", m.GetUntyped().GetValue())
	}
}
