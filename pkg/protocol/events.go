package protocol

// Audit actions recorded when the resolution engine writes.
const (
	AuditProjectCreated    = "project.created"
	AuditMappingCreated    = "mapping.created"
	AuditManualMappingSeen = "mapping.manual_ensured"
	AuditSubprojectCreated = "project.subproject_created"
)

// Bundle modes accepted by GET /context/bundle.
const (
	BundleModeDefault = "default"
	BundleModeDebug   = "debug"
)

// Header names.
const (
	HeaderUserID    = "X-Memhub-User-Id"
	HeaderRequestID = "X-Request-Id"
)
