package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metrics = struct {
	checkpointsRun   prometheus.Counter
	epochsProcessed  prometheus.Counter
	workerFailures   prometheus.Counter
}{
	checkpointsRun: promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_checkpoint_runs_total",
		Help: "Number of checkpoint pipeline runs completed.",
	}),
	epochsProcessed: promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_checkpoint_epochs_processed_total",
		Help: "Number of duty epochs processed across all checkpoints.",
	}),
	workerFailures: promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_checkpoint_worker_failures_total",
		Help: "Number of checkpoint worker goroutines that returned an error.",
	}),
}
