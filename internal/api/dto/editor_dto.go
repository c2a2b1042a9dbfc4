package dto

import "github.com/spec-kit/token-manager/internal/editor"

// OpenEditorRequest payload.
type OpenEditorRequest struct {
	EditorType string `json:"editor_type" validate:"required"`
	Token      string `json:"token" validate:"required"`
	TenantURL  string `json:"tenant_url" validate:"required"`
	PortalURL  string `json:"portal_url"`
}

// OpenEditorResponse carries the protocol URL the client should open.
type OpenEditorResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ProtocolURL string `json:"protocol_url"`
}

// SupportedEditorsResponse lists editors grouped by deep-link family.
type SupportedEditorsResponse struct {
	VSCodeEditors    []editor.Editor `json:"vscode_editors"`
	JetBrainsEditors []editor.Editor `json:"jetbrains_editors"`
}
