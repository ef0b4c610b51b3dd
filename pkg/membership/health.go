package membership

// HealthReporter is an optional interface that an engine may provide to report
// a local health score. Higher scores indicate degraded health (for example
// missed acks). A return value of -1 means the engine is not running.
type HealthReporter interface {
    HealthScore() int
}
