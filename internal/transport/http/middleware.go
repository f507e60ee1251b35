package http

import (
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
)

const actorIDKey = "actorID"

// Protected authenticates requests with a bearer JWT and stores the token's
// subject as the acting user id. Authorization decisions stay in the service
// layer; this only establishes identity.
func Protected(secret []byte) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:     secret,
		ErrorHandler:   jwtError,
		SuccessHandler: storeActor,
	})
}

func storeActor(c *fiber.Ctx) error {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return jwtError(c, jwt.ErrTokenMalformed)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return jwtError(c, jwt.ErrTokenInvalidClaims)
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return jwtError(c, jwt.ErrTokenInvalidClaims)
	}
	c.Locals(actorIDKey, sub)
	return c.Next()
}

func jwtError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "invalid or expired token",
	})
}

func actorID(c *fiber.Ctx) string {
	id, _ := c.Locals(actorIDKey).(string)
	return id
}
