package event

// ApprovalRequestedData is the data for approval.requested events.
// Request carries the full approval payload (command classification and
// decision options) so a connected operator UI can render the dialog
// without a follow-up fetch.
type ApprovalRequestedData struct {
	ID          string `json:"id"`
	ProjectPath string `json:"projectPath"`
	FeatureID   string `json:"featureID,omitempty"`
	WorktreeID  string `json:"worktreeID,omitempty"`
	Command     string `json:"command"`
	RiskLevel   string `json:"riskLevel"`
	Request     any    `json:"request"`
}

// ApprovalResolvedData is the data for approval.resolved events.
type ApprovalResolvedData struct {
	ID       string `json:"id"`
	Action   string `json:"action"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

// SettingsUpdatedData is the data for settings.updated events.
type SettingsUpdatedData struct {
	ProjectPath string `json:"projectPath"`
	Settings    any    `json:"settings"`
}

// AuditRecordedData is the data for audit.recorded events.
type AuditRecordedData struct {
	ProjectPath string `json:"projectPath"`
	EventType   string `json:"eventType"`
	EntryID     string `json:"entryID"`
}
