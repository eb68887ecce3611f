package handler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/embedding"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// UserRepository is the identity table as exposed by /api/users.
type UserRepository interface {
	Create(ctx context.Context, name, otp, vector string) (*domain.Identity, error)
	GetByID(ctx context.Context, id int64) (*domain.Identity, error)
	GetByOTP(ctx context.Context, otp string) (*domain.Identity, error)
	Update(ctx context.Context, id int64, upd domain.IdentityUpdate) (*domain.Identity, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]domain.Identity, error)
}

// UsersHandler serves the identity store REST API consumed by store.Client.
type UsersHandler struct {
	repo   UserRepository
	logger *slog.Logger
}

func NewUsersHandler(repo UserRepository, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{
		repo:   repo,
		logger: logger,
	}
}

// UserRequest is the body of POST and PUT /api/users.
type UserRequest struct {
	Name   *string `json:"name"`
	OTP    *string `json:"otp"`
	Vector *string `json:"vector"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// List GET /api/users
func (h *UsersHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		return domain.ErrValidationFailed.WithError(errors.New("limit must be between 1 and 1000"))
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		return domain.ErrValidationFailed.WithError(errors.New("offset must not be negative"))
	}

	users, err := h.repo.List(c.Context(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(users)
}

// Create POST /api/users - name, otp and vector are all required.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req UserRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	name, otp, vector := deref(req.Name), deref(req.OTP), deref(req.Vector)
	if strings.TrimSpace(name) == "" || strings.TrimSpace(otp) == "" || vector == "" {
		return domain.ErrBadRequest.WithError(errors.New("name, otp and vector are required"))
	}
	if _, err := embedding.Decode(vector); err != nil {
		return err
	}

	user, err := h.repo.Create(c.Context(), name, otp, vector)
	if err != nil {
		return err
	}

	h.logger.Info("identity created", "identity_id", user.ID)
	return c.Status(fiber.StatusCreated).JSON(user)
}

// Get GET /api/users/:id
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	user, err := h.repo.GetByID(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// GetByOTP GET /api/users/by_otp/:otp
func (h *UsersHandler) GetByOTP(c *fiber.Ctx) error {
	otp := strings.TrimSpace(c.Params("otp"))
	if otp == "" {
		return domain.ErrBadRequest.WithError(errors.New("otp is required"))
	}

	user, err := h.repo.GetByOTP(c.Context(), otp)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// Update PUT /api/users/:id - fields left out of the body are kept.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req UserRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if req.Vector != nil {
		if _, err := embedding.Decode(*req.Vector); err != nil {
			return err
		}
	}

	user, err := h.repo.Update(c.Context(), id, domain.IdentityUpdate{
		Name:   req.Name,
		OTP:    req.OTP,
		Vector: req.Vector,
	})
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// Delete DELETE /api/users/:id
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.repo.Delete(c.Context(), id); err != nil {
		return err
	}

	h.logger.Info("identity deleted", "identity_id", id)
	return c.JSON(MessageResponse{Message: "user deleted"})
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrBadRequest.WithError(errors.New("id must be a positive integer"))
	}
	return id, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
