package cli

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/complykit/audittrail/pkg/audittrail"
	"github.com/complykit/audittrail/pkg/errclass"
)

var (
	metricsAddr string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show or serve trail metrics",
	Long: `Show or serve Prometheus metrics for the trail.

Opens the trail, verifies the hash chain once, and prints the gathered
metric families. With --addr it keeps serving /metrics until interrupted.

Examples:
  audittrail metrics
  audittrail metrics --addr :2112`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := openTrail(audittrail.Options{})
		if err != nil {
			return err
		}
		defer trail.Close()

		reg := trail.Metrics()
		if reg == nil {
			return errclass.ErrValidation.WithMessage("metrics are disabled in config.yaml")
		}
		trail.VerifyChain()

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg.Registerer(), promhttp.HandlerOpts{}))
			fmt.Printf("Metrics available at http://%s/metrics\n", metricsAddr)
			fmt.Println("Press Ctrl+C to stop")
			return http.ListenAndServe(metricsAddr, mux)
		}

		families, err := reg.Gather()
		if err != nil {
			return fmt.Errorf("gather metrics: %w", err)
		}
		if jsonOutput {
			return outputJSON(families)
		}
		for _, mf := range families {
			printFamily(mf)
		}
		return nil
	},
}

func printFamily(mf *dto.MetricFamily) {
	fmt.Printf("# %s %s\n", mf.GetType(), mf.GetName())
	for _, m := range mf.GetMetric() {
		labels := m.GetLabel()
		sort.Slice(labels, func(i, j int) bool { return labels[i].GetName() < labels[j].GetName() })
		name := mf.GetName()
		if len(labels) > 0 {
			name += "{"
			for i, l := range labels {
				if i > 0 {
					name += ","
				}
				name += fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
			}
			name += "}"
		}
		switch {
		case m.Counter != nil:
			fmt.Printf("%s %g\n", name, m.GetCounter().GetValue())
		case m.Gauge != nil:
			fmt.Printf("%s %g\n", name, m.GetGauge().GetValue())
		case m.Histogram != nil:
			h := m.GetHistogram()
			fmt.Printf("%s count=%d sum=%g\n", name, h.GetSampleCount(), h.GetSampleSum())
		}
	}
}

func init() {
	metricsCmd.Flags().StringVarP(&metricsAddr, "addr", "a", "", "serve /metrics on this address")
	rootCmd.AddCommand(metricsCmd)
}
