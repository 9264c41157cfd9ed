package vecenv

import "github.com/prometheus/client_golang/prometheus"

var (
	stepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "govec_env_steps_total",
			Help: "Total number of single-environment steps executed.",
		},
	)

	episodesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "govec_episodes_total",
			Help: "Total number of episodes finished across all slots.",
		},
	)

	environmentFaultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "govec_environment_faults_total",
			Help: "Total number of faults raised by environment instances.",
		},
	)

	workerTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "govec_worker_timeouts_total",
			Help: "Total number of workers that missed their liveness window.",
		},
	)
)

func init() {
	prometheus.MustRegister(stepsTotal)
	prometheus.MustRegister(episodesTotal)
	prometheus.MustRegister(environmentFaultsTotal)
	prometheus.MustRegister(workerTimeoutsTotal)
}
