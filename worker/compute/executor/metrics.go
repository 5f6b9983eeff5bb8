package executor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	batchSize = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "enclaved_executor_batch_size",
			Help: "Number of calls in a submitted batch.",
		},
		[]string{"runtime"},
	)
	storageInsertCount = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "enclaved_executor_storage_inserts",
			Help: "Number of storage values inserted while processing a batch.",
		},
		[]string{"runtime"},
	)
	batchRuntimeProcessingTime = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "enclaved_executor_runtime_processing_time",
			Help: "Time the runtime spent executing a batch (seconds).",
		},
		[]string{"runtime"},
	)
	storageCommitLatency = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "enclaved_executor_storage_commit_latency",
			Help: "Latency of the batch storage commit (seconds).",
		},
		[]string{"runtime"},
	)
	abortedBatchCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enclaved_executor_aborted_batch_count",
			Help: "Number of batches the runtime aborted with a batch-wide error.",
		},
		[]string{"runtime"},
	)
	batchProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enclaved_executor_batch_processed_count",
			Help: "Number of batches executed to completion.",
		},
		[]string{"runtime"},
	)

	executorCollectors = []prometheus.Collector{
		batchSize,
		storageInsertCount,
		batchRuntimeProcessingTime,
		storageCommitLatency,
		abortedBatchCount,
		batchProcessed,
	}

	metricsOnce sync.Once
)

func registerMetricsOnce() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(executorCollectors...)
	})
}
