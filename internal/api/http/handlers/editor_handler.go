package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/token-manager/internal/api/dto"
	"github.com/spec-kit/token-manager/internal/editor"
	apperrors "github.com/spec-kit/token-manager/pkg/util/errorutil"
)

// EditorHandler serves the editor catalogue and deep links.
type EditorHandler struct{}

// NewEditorHandler constructs handler.
func NewEditorHandler() *EditorHandler {
	return &EditorHandler{}
}

// SupportedEditors handles GET /api/ide/supported-editors.
func (h *EditorHandler) SupportedEditors(c *fiber.Ctx) error {
	vscode, jetbrains := editor.Supported()
	return c.JSON(fiber.Map{"data": dto.SupportedEditorsResponse{
		VSCodeEditors:    vscode,
		JetBrainsEditors: jetbrains,
	}})
}

// OpenEditor handles POST /api/ide/open-editor.
func (h *EditorHandler) OpenEditor(c *fiber.Ctx) error {
	var req dto.OpenEditorRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	link, err := editor.DeepLink(req.EditorType, req.Token, req.TenantURL, req.PortalURL)
	if err != nil {
		var unsupported *editor.UnsupportedEditorError
		if errors.As(err, &unsupported) {
			return apperrors.NewValidationError(err.Error(), map[string]any{"editor_type": unsupported.EditorID})
		}
		return err
	}

	ed, _ := editor.Lookup(req.EditorType)
	return c.JSON(fiber.Map{"data": dto.OpenEditorResponse{
		Success:     true,
		Message:     fmt.Sprintf("opening %s", ed.Name),
		ProtocolURL: link,
	}})
}
