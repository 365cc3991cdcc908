package workers

import "lead_engine/models"

// LogFunc writes a worker line to the run_logs table.
type LogFunc func(level models.LogLevel, scope, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, scope, message string) {}
