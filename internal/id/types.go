package id

// Prefixes for every entity kind the control plane identifies.
const (
	prefixTenant         = "ten"
	prefixWorkspace      = "wks"
	prefixProject        = "prj"
	prefixAgent          = "agt"
	prefixAgentVersion   = "agv"
	prefixTool           = "tol"
	prefixToolVersion    = "tov"
	prefixRun            = "run"
	prefixStep           = "stp"
	prefixPolicyRule     = "pol"
	prefixPolicyDecision = "pdc"
	prefixApproval       = "apr"
	prefixAuditEvent     = "aud"
	prefixAPIKey         = "key"
	prefixArtifact       = "art"
)

// Each typed ID below is a thin wrapper over ID bound to one entity-kind
// prefix. They exist so the compiler rejects passing a ToolID where a RunID
// is expected, even though both are ULIDs underneath.

type TenantID struct{ ID }
type WorkspaceID struct{ ID }
type ProjectID struct{ ID }
type AgentID struct{ ID }
type AgentVersionID struct{ ID }
type ToolID struct{ ID }
type ToolVersionID struct{ ID }
type RunID struct{ ID }
type StepID struct{ ID }
type PolicyRuleID struct{ ID }
type PolicyDecisionID struct{ ID }
type ApprovalID struct{ ID }
type AuditEventID struct{ ID }
type APIKeyID struct{ ID }
type ArtifactID struct{ ID }

func NewTenantID() TenantID             { return TenantID{New(prefixTenant)} }
func NewWorkspaceID() WorkspaceID       { return WorkspaceID{New(prefixWorkspace)} }
func NewProjectID() ProjectID           { return ProjectID{New(prefixProject)} }
func NewAgentID() AgentID               { return AgentID{New(prefixAgent)} }
func NewAgentVersionID() AgentVersionID { return AgentVersionID{New(prefixAgentVersion)} }
func NewToolID() ToolID                 { return ToolID{New(prefixTool)} }
func NewToolVersionID() ToolVersionID   { return ToolVersionID{New(prefixToolVersion)} }
func NewRunID() RunID                   { return RunID{New(prefixRun)} }
func NewStepID() StepID                 { return StepID{New(prefixStep)} }
func NewPolicyRuleID() PolicyRuleID     { return PolicyRuleID{New(prefixPolicyRule)} }
func NewPolicyDecisionID() PolicyDecisionID {
	return PolicyDecisionID{New(prefixPolicyDecision)}
}
func NewApprovalID() ApprovalID     { return ApprovalID{New(prefixApproval)} }
func NewAuditEventID() AuditEventID { return AuditEventID{New(prefixAuditEvent)} }
func NewAPIKeyID() APIKeyID         { return APIKeyID{New(prefixAPIKey)} }
func NewArtifactID() ArtifactID     { return ArtifactID{New(prefixArtifact)} }

func ParseTenantID(s string) (TenantID, error) {
	v, err := Parse(prefixTenant, s)
	return TenantID{v}, err
}

func ParseWorkspaceID(s string) (WorkspaceID, error) {
	v, err := Parse(prefixWorkspace, s)
	return WorkspaceID{v}, err
}

func ParseProjectID(s string) (ProjectID, error) {
	v, err := Parse(prefixProject, s)
	return ProjectID{v}, err
}

func ParseAgentID(s string) (AgentID, error) {
	v, err := Parse(prefixAgent, s)
	return AgentID{v}, err
}

func ParseAgentVersionID(s string) (AgentVersionID, error) {
	v, err := Parse(prefixAgentVersion, s)
	return AgentVersionID{v}, err
}

func ParseToolID(s string) (ToolID, error) {
	v, err := Parse(prefixTool, s)
	return ToolID{v}, err
}

func ParseToolVersionID(s string) (ToolVersionID, error) {
	v, err := Parse(prefixToolVersion, s)
	return ToolVersionID{v}, err
}

func ParseRunID(s string) (RunID, error) {
	v, err := Parse(prefixRun, s)
	return RunID{v}, err
}

func ParseStepID(s string) (StepID, error) {
	v, err := Parse(prefixStep, s)
	return StepID{v}, err
}

func ParsePolicyRuleID(s string) (PolicyRuleID, error) {
	v, err := Parse(prefixPolicyRule, s)
	return PolicyRuleID{v}, err
}

func ParsePolicyDecisionID(s string) (PolicyDecisionID, error) {
	v, err := Parse(prefixPolicyDecision, s)
	return PolicyDecisionID{v}, err
}

func ParseApprovalID(s string) (ApprovalID, error) {
	v, err := Parse(prefixApproval, s)
	return ApprovalID{v}, err
}

func ParseAuditEventID(s string) (AuditEventID, error) {
	v, err := Parse(prefixAuditEvent, s)
	return AuditEventID{v}, err
}

func ParseAPIKeyID(s string) (APIKeyID, error) {
	v, err := Parse(prefixAPIKey, s)
	return APIKeyID{v}, err
}

func ParseArtifactID(s string) (ArtifactID, error) {
	v, err := Parse(prefixArtifact, s)
	return ArtifactID{v}, err
}
