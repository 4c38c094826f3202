package api

import (
	"fmt"
	"net/http"
)

// MetricsHandler exports a small Prometheus text-format snapshot: row
// counts from internal/db plus the rate limiter's configured ceilings,
// for the `/api/v1/metrics` route SPEC_FULL.md adds beyond spec.md's core
// table.
func MetricsHandler(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		stats, err := deps.DB.Stats(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("# webpods metrics unavailable\n"))
			return
		}

		lines := []string{
			"# HELP webpods_pods_total Number of pods.",
			"# TYPE webpods_pods_total gauge",
			fmt.Sprintf("webpods_pods_total %d", stats.Pods),
			"# HELP webpods_streams_total Number of streams across all pods.",
			"# TYPE webpods_streams_total gauge",
			fmt.Sprintf("webpods_streams_total %d", stats.Streams),
			"# HELP webpods_records_total Number of records across all streams.",
			"# TYPE webpods_records_total gauge",
			fmt.Sprintf("webpods_records_total %d", stats.Records),
		}
		if deps.RateLimit != nil {
			lines = append(lines,
				"# HELP webpods_rate_limit_ceiling Configured per-hour limit by action.",
				"# TYPE webpods_rate_limit_ceiling gauge",
				fmt.Sprintf("webpods_rate_limit_ceiling{action=\"read\"} %d", deps.RateLimit.Limits.Read),
				fmt.Sprintf("webpods_rate_limit_ceiling{action=\"write\"} %d", deps.RateLimit.Limits.Write),
				fmt.Sprintf("webpods_rate_limit_ceiling{action=\"pod_create\"} %d", deps.RateLimit.Limits.PodCreate),
				fmt.Sprintf("webpods_rate_limit_ceiling{action=\"stream_create\"} %d", deps.RateLimit.Limits.StreamCreate),
			)
		}
		for _, line := range lines {
			_, _ = fmt.Fprintln(w, line)
		}
	}
}
