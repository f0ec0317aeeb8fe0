package httpapi

import (
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// LoggerMiddleware logs each request with its latency and response status.
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Printf("[%s] %s - %d in %v",
			c.Method(), c.Path(), c.Response().StatusCode(), time.Since(start))
		return err
	}
}

// CORSMiddleware allows cross-origin calls from dashboard frontends.
func CORSMiddleware() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE",
		AllowHeaders: "Content-Type",
	})
}

// RecoveryMiddleware recovers from handler panics and returns 500.
func RecoveryMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC: %v\n%s", r, debug.Stack())
				if err := c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": fmt.Sprintf("internal server error: %v", r),
				}); err != nil {
					log.Printf("recovery: send response: %v", err)
				}
			}
		}()
		return c.Next()
	}
}
