package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/sangamhq/sangam/internal/pkg/billing"
	"github.com/sangamhq/sangam/internal/pkg/cache"
	"github.com/sangamhq/sangam/internal/pkg/database"
	"github.com/sangamhq/sangam/internal/pkg/env"
	"github.com/sangamhq/sangam/internal/pkg/notify"
	"github.com/sangamhq/sangam/internal/pkg/router"
)

func main() {
	app, worker := NewApplication()

	// graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		worker.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *notify.Worker) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// notification worker pool with ledger housekeeping
	worker := notify.NewWorker(cache.GetClient(), nil, billing.NewLedger(database.GetDB()), 2)
	worker.Start()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:           "Sangam Billing",
		EnablePrintRoutes: env.IsDev(),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app, worker
}
