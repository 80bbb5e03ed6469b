package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/CartFox/internal/pkg/cache"
	"github.com/ManuelReschke/CartFox/internal/pkg/database"
	"github.com/ManuelReschke/CartFox/internal/pkg/env"
	"github.com/ManuelReschke/CartFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CartFox/internal/pkg/router"
)

func main() {
	app := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Errorf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutdown signal received")
	jobqueue.GetManager().Stop()
	if err := app.Shutdown(); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	jobqueue.GetManager().Start()

	app := fiber.New(fiber.Config{
		BodyLimit: 1048576,
	})

	app.Use(recover.New(), logger.New())

	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	router.InstallRouter(app)

	return app
}
