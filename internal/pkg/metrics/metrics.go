package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds the node's collectors. It is separate from the default
// registry so tests can build a node without global registration clashes.
var Registry = prometheus.NewRegistry()

var (
	// UpdateChecksTotal counts completed update checks by outcome:
	// no_update, updated or failed.
	UpdateChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpeer_node_update_checks_total",
			Help: "Total number of update checks by outcome.",
		},
		[]string{"outcome"},
	)

	// UpdateFailuresTotal counts failed update attempts by reason.
	UpdateFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpeer_node_update_failures_total",
			Help: "Total number of failed update attempts by reason.",
		},
		[]string{"reason"},
	)

	// UpdatePhase is 1 for the coordinator's current phase and 0 otherwise.
	UpdatePhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cpeer_node_update_phase",
			Help: "Current phase of the update coordinator (1 = active).",
		},
		[]string{"phase"},
	)

	// InstalledVersion is the firmware version recorded in the version store.
	InstalledVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cpeer_node_installed_version",
			Help: "Installed firmware version.",
		},
	)

	// ExtractedFilesTotal counts archive entries by result: written, dir or skipped.
	ExtractedFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpeer_node_extracted_entries_total",
			Help: "Total number of archive entries processed by result.",
		},
		[]string{"result"},
	)

	// ExtractedBytesTotal counts payload bytes written by the installer.
	ExtractedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cpeer_node_extracted_bytes_total",
			Help: "Total number of bytes written by the archive installer.",
		},
	)

	// TaskRestartsTotal counts supervisor restarts of scheduler tasks.
	TaskRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpeer_node_task_restarts_total",
			Help: "Total number of scheduler task restarts.",
		},
		[]string{"task"},
	)

	// HeartbeatTimestamp is the unix time of the last heartbeat.
	HeartbeatTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cpeer_node_heartbeat_timestamp_seconds",
			Help: "Unix time of the last heartbeat.",
		},
	)

	// TelemetryPublishesTotal counts telemetry publish attempts by status: success, failed or discarded.
	TelemetryPublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpeer_node_telemetry_publishes_total",
			Help: "Total number of telemetry publish attempts by status.",
		},
		[]string{"status"},
	)

	// SensorAvailable is 1 while the accelerometer is detected.
	SensorAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cpeer_node_sensor_available",
			Help: "Accelerometer availability (1 = available).",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		UpdateChecksTotal,
		UpdateFailuresTotal,
		UpdatePhase,
		InstalledVersion,
		ExtractedFilesTotal,
		ExtractedBytesTotal,
		TaskRestartsTotal,
		HeartbeatTimestamp,
		TelemetryPublishesTotal,
		SensorAvailable,
	)
}
