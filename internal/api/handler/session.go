package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/session"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/ws"
)

const (
	maxImageSize = 10 * 1024 * 1024 // 10MB

	// BodyLimit leaves room for the multipart envelope around an image
	BodyLimit = maxImageSize + 1024*1024
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// SessionRegistry creates and looks up sessions
type SessionRegistry interface {
	Create(ctx context.Context, opts session.CreateOptions) (*session.Session, error)
	Get(id uuid.UUID) (*session.Session, error)
	Delete(id uuid.UUID) error
}

// SessionHandler exposes session operations over HTTP
type SessionHandler struct {
	sessions SessionRegistry
	logger   *slog.Logger
}

func NewSessionHandler(sessions SessionRegistry, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// CreateSessionRequest is the optional body of POST /v1/sessions
type CreateSessionRequest struct {
	AutoChecks *bool `json:"auto_checks,omitempty"`
}

type APIURLRequest struct {
	APIURL string `json:"api_url"`
}

type TabRequest struct {
	Tab string `json:"tab"`
}

// AnalyzeResponse wraps the analysis so "no face" is an explicit null
type AnalyzeResponse struct {
	Face *domain.AnalyzeResult `json:"face"`
}

// Create POST /v1/sessions - start a session
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return domain.ErrBadRequest.WithError(err)
		}
	}

	// header values alias the request buffer, which fasthttp reuses
	s, err := h.sessions.Create(c.Context(), session.CreateOptions{
		ClientID:   strings.TrimSpace(utils.CopyString(c.Get(middleware.ClientIDHeader))),
		AutoChecks: req.AutoChecks,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return c.Status(fiber.StatusCreated).JSON(s.Snapshot())
}

// Get GET /v1/sessions/:id - session snapshot
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(s.Snapshot())
}

// Delete DELETE /v1/sessions/:id - end a session
func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Delete(id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateSelection PATCH /v1/sessions/:id/selection - model, metric, threshold, detector
func (h *SessionHandler) UpdateSelection(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var patch session.SelectionPatch
	if err := c.BodyParser(&patch); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	if _, err := s.UpdateSelection(patch); err != nil {
		return err
	}

	return c.JSON(s.Snapshot())
}

// SetAPIURL PUT /v1/sessions/:id/api-url - switch inference service
//
// A catalog failure after the switch is reported through the snapshot
// notice; only an invalid URL fails the request.
func (h *SessionHandler) SetAPIURL(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var req APIURLRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	if err := s.SetAPIURL(c.Context(), req.APIURL); err != nil {
		if errors.Is(err, domain.ErrInvalidAPIURL) {
			return err
		}
		h.logger.Warn("catalog refresh after API URL change failed",
			slog.String("session_id", s.ID().String()),
			slog.String("error", err.Error()),
		)
	}

	return c.JSON(s.Snapshot())
}

// Refresh POST /v1/sessions/:id/refresh - refetch the catalog
func (h *SessionHandler) Refresh(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	if err := s.Refresh(c.Context()); err != nil {
		return err
	}
	return c.JSON(s.Snapshot())
}

// SwitchTab PUT /v1/sessions/:id/tab - change tab, resetting images and results
func (h *SessionHandler) SwitchTab(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var req TabRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	if err := s.SwitchTab(req.Tab); err != nil {
		return err
	}

	return c.JSON(s.Snapshot())
}

// SetImage PUT /v1/sessions/:id/images/:slot - upload multipart field "image"
func (h *SessionHandler) SetImage(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	slot, err := domain.ParseSlot(c.Params("slot"))
	if err != nil {
		return err
	}

	name, contentType, data, err := extractAndValidateImage(c)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}

	info, err := s.SetImage(slot, name, contentType, data)
	if err != nil {
		return err
	}

	return c.JSON(info)
}

// ClearImage DELETE /v1/sessions/:id/images/:slot
func (h *SessionHandler) ClearImage(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	slot, err := domain.ParseSlot(c.Params("slot"))
	if err != nil {
		return err
	}

	if err := s.ClearImage(slot); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Compare POST /v1/sessions/:id/compare - verify the two images
func (h *SessionHandler) Compare(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	result, err := s.SubmitCompare(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(result)
}

// Liveness POST /v1/sessions/:id/liveness - liveness of the slot one image
func (h *SessionHandler) Liveness(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	result, err := s.SubmitLiveness(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(result)
}

// Analyze POST /v1/sessions/:id/analyze - demographics of the slot one image
func (h *SessionHandler) Analyze(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	result, err := s.SubmitAnalyze(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(AnalyzeResponse{Face: result})
}

// Watch resolves the session of a WebSocket upgrade and hands it to the hub
// handler through locals
func (h *SessionHandler) Watch(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	c.Locals(ws.SessionIDLocal, s.ID())
	return c.Next()
}

func (h *SessionHandler) session(c *fiber.Ctx) (*session.Session, error) {
	id, err := sessionID(c)
	if err != nil {
		return nil, err
	}
	return h.sessions.Get(id)
}

func sessionID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, domain.ErrSessionNotFound.WithError(err)
	}
	return id, nil
}

// extractAndValidateImage reads the "image" form file
func extractAndValidateImage(c *fiber.Ctx) (string, string, []byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return "", "", nil, domain.ErrValidationFailed.WithError(err)
	}

	if file.Size == 0 {
		return "", "", nil, domain.ErrInvalidImage.WithError(errors.New("empty file"))
	}
	if file.Size > maxImageSize {
		return "", "", nil, domain.ErrInvalidImage.WithError(fmt.Errorf("file exceeds %d bytes", maxImageSize))
	}

	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return "", "", nil, domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported content type %q", contentType))
	}

	f, err := file.Open()
	if err != nil {
		return "", "", nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", "", nil, domain.ErrInvalidImage.WithError(err)
	}

	return file.Filename, contentType, data, nil
}
