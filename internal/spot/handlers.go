package spot

import (
	"errors"
	"strconv"

	"github.com/cristiansk8/TheTrickest-sub001/internal/validation"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware, optionalAuthMiddleware fiber.Handler) {
	// registered before /:id so the literal path wins
	r.Get("/nearby", optionalAuthMiddleware, func(c *fiber.Ctx) error {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng required")
		}
		radius, _ := strconv.ParseFloat(c.Query("radius_km"), 64)
		if radius <= 0 {
			radius = 5
		}

		_, authenticated := c.Locals("user_id").(string)
		results, err := svc.Nearby(c.Context(), lat, lng, radius, c.Query("stage"), c.Query("category"), authenticated)
		if err != nil {
			if errors.Is(err, ErrInvalidInput) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(results)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing user")
		}

		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		sp, err := svc.Register(c.Context(), userID, req)
		if err != nil {
			var conflict *RegistrationConflict
			switch {
			case errors.As(err, &conflict):
				return c.Status(fiber.StatusConflict).JSON(conflict)
			case errors.Is(err, ErrInvalidInput):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": "VALIDATION_ERROR", "message": err.Error()})
			default:
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}
		return c.Status(fiber.StatusCreated).JSON(sp)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		sp, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			if errors.Is(err, validation.ErrSpotNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "spot not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(sp)
	})

	r.Get("/:id/history", func(c *fiber.Ctx) error {
		history, err := svc.History(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(history)
	})
}
