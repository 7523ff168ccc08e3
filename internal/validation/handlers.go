package validation

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the ledger endpoints under the spots group.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/:id/validations", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing user")
		}

		var req ValidateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result, err := svc.Validate(c.Context(), c.Params("id"), userID, req)
		if err != nil {
			return writeLedgerError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Get("/:id/validations", func(c *fiber.Ctx) error {
		list, err := svc.Validations(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(list)
	})

	r.Post("/:id/photos", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing user")
		}

		var req PhotoRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		photo, err := svc.RecordPhoto(c.Context(), c.Params("id"), userID, req)
		if err != nil {
			return writeLedgerError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(photo)
	})

	r.Get("/:id/photos", func(c *fiber.Ctx) error {
		photos, err := svc.Photos(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(photos)
	})

	r.Get("/:id/crowd", func(c *fiber.Ctx) error {
		status, ok, err := svc.Crowd(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no check-ins for this spot")
		}
		return c.JSON(status)
	})
}

// writeLedgerError maps engine errors to transport responses. Business
// rejections carry machine-readable codes and enough payload to act on.
func writeLedgerError(c *fiber.Ctx, err error) error {
	var proxErr *ProximityError
	switch {
	case errors.Is(err, ErrSpotNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"code": "NOT_FOUND", "message": "spot not found"})
	case errors.Is(err, ErrAlreadyValidated):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"code": "ALREADY_VALIDATED", "message": "this method was already used for this spot"})
	case errors.Is(err, ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"code": "FORBIDDEN", "message": "validate the spot before adding photos"})
	case errors.Is(err, ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": "VALIDATION_ERROR", "message": err.Error()})
	case errors.As(err, &proxErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"code":       "TOO_FAR",
			"message":    proxErr.Error(),
			"distance_m": proxErr.DistanceM,
			"hint":       proxErr.Hint,
		})
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
