package security

import (
	"os"
	"time"

	"pgspin/internal/logger"
)

// AuditEvent represents an auditable lifecycle event for a cluster or
// instance.
type AuditEvent struct {
	Timestamp time.Time
	User      string
	Action    string
	Resource  string
	Result    string
	Details   map[string]interface{}
}

// AuditLogger provides audit logging functionality.
type AuditLogger struct {
	log     logger.Logger
	enabled bool
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(log logger.Logger, enabled bool) *AuditLogger {
	return &AuditLogger{
		log:     log,
		enabled: enabled,
	}
}

// LogClusterInitStart logs the start of a data cluster initialize operation.
func (a *AuditLogger) LogClusterInitStart(user, clusterID string) {
	a.emit(user, "CLUSTER_INIT_START", clusterID, "INITIATED", nil)
}

// LogClusterInitComplete logs a completed initialize operation.
func (a *AuditLogger) LogClusterInitComplete(user, clusterID, dataDirectory string) {
	a.emit(user, "CLUSTER_INIT_COMPLETE", clusterID, "SUCCESS", map[string]interface{}{
		"data_directory": dataDirectory,
	})
}

// LogClusterInitFailed logs a failed initialize operation.
func (a *AuditLogger) LogClusterInitFailed(user, clusterID string, err error) {
	a.emit(user, "CLUSTER_INIT_FAILED", clusterID, "FAILURE", map[string]interface{}{
		"error": err.Error(),
	})
}

// LogClusterStart logs a cluster start operation.
func (a *AuditLogger) LogClusterStart(user, clusterID string, port int) {
	a.emit(user, "CLUSTER_START", clusterID, "SUCCESS", map[string]interface{}{
		"port": port,
	})
}

// LogClusterStop logs a cluster stop operation.
func (a *AuditLogger) LogClusterStop(user, clusterID string, duration time.Duration) {
	a.emit(user, "CLUSTER_STOP", clusterID, "SUCCESS", map[string]interface{}{
		"duration_seconds": duration.Seconds(),
	})
}

// LogClusterDestroy logs the destruction of a cluster's data directory.
func (a *AuditLogger) LogClusterDestroy(user, clusterID string) {
	a.emit(user, "CLUSTER_DESTROY", clusterID, "SUCCESS", nil)
}

// LogSQLExecution logs a psql invocation against a cluster.
func (a *AuditLogger) LogSQLExecution(user, clusterID, database string, success bool, err error) {
	result := "SUCCESS"
	details := map[string]interface{}{"database": database}
	if !success {
		result = "FAILURE"
		if err != nil {
			details["error"] = err.Error()
		}
	}
	a.emit(user, "SQL_EXECUTE", clusterID, result, details)
}

// LogDumpRestore logs a pg_dump/pg_restore invocation.
func (a *AuditLogger) LogDumpRestore(user, clusterID, action, path string, err error) {
	result := "SUCCESS"
	details := map[string]interface{}{"path": path}
	if err != nil {
		result = "FAILURE"
		details["error"] = err.Error()
	}
	a.emit(user, action, clusterID, result, details)
}

func (a *AuditLogger) emit(user, action, resource, result string, details map[string]interface{}) {
	if !a.enabled {
		return
	}
	a.logEvent(AuditEvent{
		Timestamp: time.Now(),
		User:      user,
		Action:    action,
		Resource:  resource,
		Result:    result,
		Details:   details,
	})
}

func (a *AuditLogger) logEvent(event AuditEvent) {
	args := []any{
		"audit", true,
		"timestamp", event.Timestamp.Format(time.RFC3339),
		"user", event.User,
		"action", event.Action,
		"resource", event.Resource,
		"result", event.Result,
	}
	for k, v := range event.Details {
		args = append(args, k, v)
	}
	a.log.Info("AUDIT", args...)
}

// GetCurrentUser returns the current system user.
func GetCurrentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "unknown"
}
