package main

import (
	"context"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/catalog-sync/modules/api"
	"github.com/example/catalog-sync/modules/async"
	"github.com/example/catalog-sync/modules/media"
	ordermod "github.com/example/catalog-sync/modules/order"
	productmod "github.com/example/catalog-sync/modules/product"
	"github.com/example/catalog-sync/modules/recordstore"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("=== Catalog Sync ===")
	log.Printf("Record store driver: %s", cfg.RecordStore.Driver)
	log.Printf("Media bucket: %s (served on %s)", cfg.Media.Bucket, cfg.Media.HostAddr)
	log.Printf("API address: %s", cfg.API.Addr)

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create mono application: %v", err)
	}

	// Modules start in registration order, so providers come first.
	asyncModule := async.NewModule(cfg.Async, app.Logger())
	storeModule := recordstore.NewModule(cfg.RecordStore, app.Logger())
	mediaModule := media.NewModule(cfg.Media, app.Logger())
	productModule := productmod.NewModule(cfg.Product, storeModule, mediaModule, asyncModule, app.Logger())
	orderModule := ordermod.NewModule(storeModule, asyncModule, app.Logger())
	apiModule := api.NewModule(cfg.API, productModule, orderModule, app.Logger())

	app.Register(asyncModule)
	app.Register(storeModule)
	app.Register(mediaModule)
	app.Register(productModule)
	app.Register(orderModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	log.Println("Application started successfully!")
	log.Printf("  - http://localhost%s/api/v1/products", cfg.API.Addr)
	log.Printf("  - http://localhost%s/api/v1/orders", cfg.API.Addr)
	log.Printf("  - ws://localhost%s/ws/products", cfg.API.Addr)
	log.Println("Press Ctrl+C to shutdown")

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}
