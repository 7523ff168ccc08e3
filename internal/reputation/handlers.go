package reputation

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/leaderboard", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit"))
		board, err := svc.Leaderboard(c.Context(), limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(board)
	})

	r.Get("/:userID", func(c *fiber.Ctx) error {
		rep, err := svc.Get(c.Context(), c.Params("userID"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "reputation not found")
		}
		return c.JSON(rep)
	})
}
