package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/token-manager/internal/api/dto"
	"github.com/spec-kit/token-manager/internal/service"
	apperrors "github.com/spec-kit/token-manager/pkg/util/errorutil"
)

const exportFilename = "tokens_export.json"

// TokensHandler manages the token pool endpoints.
type TokensHandler struct {
	tokens *service.TokenService
	stats  *service.StatisticsService
}

// NewTokensHandler constructs handler.
func NewTokensHandler(tokenService *service.TokenService, statsService *service.StatisticsService) *TokensHandler {
	return &TokensHandler{tokens: tokenService, stats: statsService}
}

// List GET /api/tokens.
func (h *TokensHandler) List(c *fiber.Ctx) error {
	page, err := h.tokens.List(c.UserContext(), c.QueryInt("skip", 0), c.QueryInt("limit", 100))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenListResponse(page)})
}

// Statistics GET /api/tokens/statistics.
func (h *TokensHandler) Statistics(c *fiber.Ctx) error {
	stats, err := h.stats.Compute(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// Get GET /api/tokens/:id.
func (h *TokensHandler) Get(c *fiber.Ctx) error {
	id, err := tokenID(c)
	if err != nil {
		return err
	}
	token, err := h.tokens.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenResponse(token)})
}

// Create POST /api/tokens.
func (h *TokensHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	token, err := h.tokens.Create(c.UserContext(), req.ToInput())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTokenResponse(token)})
}

// Update PUT /api/tokens/:id.
func (h *TokensHandler) Update(c *fiber.Ctx) error {
	id, err := tokenID(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	token, err := h.tokens.Update(c.UserContext(), id, req.ToInput())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenResponse(token)})
}

// Delete DELETE /api/tokens/:id.
func (h *TokensHandler) Delete(c *fiber.Ctx) error {
	id, err := tokenID(c)
	if err != nil {
		return err
	}
	if err := h.tokens.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Validate POST /api/tokens/:id/validate.
func (h *TokensHandler) Validate(c *fiber.Ctx) error {
	id, err := tokenID(c)
	if err != nil {
		return err
	}
	result, err := h.tokens.Validate(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewValidationResultResponse(result)})
}

// Refresh POST /api/tokens/:id/refresh.
func (h *TokensHandler) Refresh(c *fiber.Ctx) error {
	id, err := tokenID(c)
	if err != nil {
		return err
	}
	token, err := h.tokens.RefreshPortalInfo(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenResponse(token)})
}

// RecordUsage POST /api/tokens/:id/usage.
func (h *TokensHandler) RecordUsage(c *fiber.Ctx) error {
	id, err := tokenID(c)
	if err != nil {
		return err
	}
	token, err := h.tokens.IncrementUsage(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenResponse(token)})
}

// Import POST /api/tokens/import. Accepts a JSON array body or a multipart
// upload of a .json file in the "file" field.
func (h *TokensHandler) Import(c *fiber.Ctx) error {
	payload, err := importPayload(c)
	if err != nil {
		return err
	}
	var entries []service.ExportedToken
	if err := json.Unmarshal(payload, &entries); err != nil {
		return apperrors.NewValidationError("import file must be a JSON array of tokens", nil)
	}

	report := h.tokens.Import(c.UserContext(), entries)
	return c.JSON(fiber.Map{"data": dto.NewImportResponse(report)})
}

// Export POST /api/tokens/export. The response is a downloadable file that Import accepts.
func (h *TokensHandler) Export(c *fiber.Ctx) error {
	ids, err := tokenIDs(c)
	if err != nil {
		return err
	}
	exported, err := h.tokens.Export(c.UserContext(), ids)
	if err != nil {
		return err
	}
	c.Attachment(exportFilename)
	return c.JSON(exported)
}

// BatchDelete POST /api/tokens/batch-delete.
func (h *TokensHandler) BatchDelete(c *fiber.Ctx) error {
	ids, err := tokenIDs(c)
	if err != nil {
		return err
	}
	report := h.tokens.BatchDelete(c.UserContext(), ids)
	return c.JSON(fiber.Map{"data": dto.NewBatchDeleteResponse(report)})
}

// BatchValidate POST /api/tokens/batch-validate. An empty body validates every token.
func (h *TokensHandler) BatchValidate(c *fiber.Ctx) error {
	ids, err := tokenIDs(c)
	if err != nil {
		return err
	}
	report, err := h.tokens.BatchValidate(c.UserContext(), ids)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBatchValidateResponse(report)})
}

// BatchRefresh POST /api/tokens/batch-refresh.
func (h *TokensHandler) BatchRefresh(c *fiber.Ctx) error {
	report, err := h.tokens.BatchRefresh(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBatchRefreshResponse(report)})
}

// tokenID reads the :id param. Anything that is not a UUID cannot name a stored token.
func tokenID(c *fiber.Ctx) (string, error) {
	raw := c.Params("id")
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", apperrors.NewNotFound("token", map[string]any{"id": raw})
	}
	return parsed.String(), nil
}

func tokenIDs(c *fiber.Ctx) ([]string, error) {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return nil, nil
	}

	var ids []string
	if body[0] == '[' {
		if err := json.Unmarshal(body, &ids); err != nil {
			return nil, apperrors.NewValidationError("body must be a JSON array of token ids", nil)
		}
	} else {
		var req dto.TokenIDsRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, apperrors.NewValidationError("body must be a JSON array of token ids", nil)
		}
		ids = req.IDs
	}
	if err := dto.ValidateIDs(ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func importPayload(c *fiber.Ctx) ([]byte, error) {
	if !strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		return c.Body(), nil
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return nil, apperrors.NewValidationError("multipart import requires a file field", nil)
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".json") {
		return nil, apperrors.NewValidationError("only .json files can be imported", map[string]any{"filename": fh.Filename})
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
