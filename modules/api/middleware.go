package api

import (
	"strings"

	"github.com/example/chat-realtime/modules/auth"
	"github.com/gofiber/fiber/v2"
)

// UserIDKey is the Fiber local holding the authenticated user ID.
const UserIDKey = "userID"

// AuthMiddleware validates the bearer token and stores the user ID in the
// request locals.
func AuthMiddleware(validator auth.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Authorization header is required",
			})
		}

		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid authorization header format. Use: Bearer <token>",
			})
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Token is required",
			})
		}

		userID, err := validator.Validate(c.UserContext(), token)
		if err != nil || userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid or expired token",
			})
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

func userIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDKey).(string)
	return id
}
