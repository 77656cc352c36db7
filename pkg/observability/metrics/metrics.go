package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	observationsConsumed atomic.Int64
	observationsDropped  atomic.Int64
	runsCompleted        atomic.Int64
	runsFailed           atomic.Int64
	rowsEmitted          atomic.Int64
	lastRunMillis        atomic.Int64
)

func Init() {}

func ObserveConsume(consumed, dropped int) {
	observationsConsumed.Add(int64(consumed))
	observationsDropped.Add(int64(dropped))
}

func ObserveRun(rows int, elapsedMillis int64, failed bool) {
	if failed {
		runsFailed.Add(1)
		return
	}
	runsCompleted.Add(1)
	rowsEmitted.Add(int64(rows))
	lastRunMillis.Store(elapsedMillis)
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP maai_featurizer_observations_consumed_total Raw observations consumed from the ingest stream.\n")
	fmt.Fprintf(w, "# TYPE maai_featurizer_observations_consumed_total counter\n")
	fmt.Fprintf(w, "maai_featurizer_observations_consumed_total %d\n", observationsConsumed.Load())

	fmt.Fprintf(w, "# HELP maai_featurizer_observations_dropped_total Raw observations dropped during schema normalization.\n")
	fmt.Fprintf(w, "# TYPE maai_featurizer_observations_dropped_total counter\n")
	fmt.Fprintf(w, "maai_featurizer_observations_dropped_total %d\n", observationsDropped.Load())

	fmt.Fprintf(w, "# HELP maai_featurizer_runs_completed_total Featurization runs completed successfully.\n")
	fmt.Fprintf(w, "# TYPE maai_featurizer_runs_completed_total counter\n")
	fmt.Fprintf(w, "maai_featurizer_runs_completed_total %d\n", runsCompleted.Load())

	fmt.Fprintf(w, "# HELP maai_featurizer_runs_failed_total Featurization runs that ended in an error.\n")
	fmt.Fprintf(w, "# TYPE maai_featurizer_runs_failed_total counter\n")
	fmt.Fprintf(w, "maai_featurizer_runs_failed_total %d\n", runsFailed.Load())

	fmt.Fprintf(w, "# HELP maai_featurizer_rows_emitted_total Hourly feature rows emitted across all completed runs.\n")
	fmt.Fprintf(w, "# TYPE maai_featurizer_rows_emitted_total counter\n")
	fmt.Fprintf(w, "maai_featurizer_rows_emitted_total %d\n", rowsEmitted.Load())

	fmt.Fprintf(w, "# HELP maai_featurizer_last_run_duration_milliseconds Wall time of the most recent completed run.\n")
	fmt.Fprintf(w, "# TYPE maai_featurizer_last_run_duration_milliseconds gauge\n")
	fmt.Fprintf(w, "maai_featurizer_last_run_duration_milliseconds %d\n", lastRunMillis.Load())
}
