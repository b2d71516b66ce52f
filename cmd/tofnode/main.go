package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lovepark/tofnode/internal/api"
	"github.com/lovepark/tofnode/internal/config"
	"github.com/lovepark/tofnode/internal/device"
	"github.com/lovepark/tofnode/internal/node"
	"github.com/lovepark/tofnode/internal/publish"
	"github.com/lovepark/tofnode/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to JSON config file (optional)")
	cameraAddr  = flag.String("camera", "", "Camera network address (overrides config)")
	listen      = flag.String("listen", "", "HTTP listen address (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// resolveConfig layers flag overrides on top of the optional config file and
// validates the result.
func resolveConfig(path, cameraAddr, listenAddr string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if cameraAddr != "" {
		cfg.CameraAddr = cameraAddr
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	cfg, err := resolveConfig(*configPath, *cameraAddr, *listen)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	log.Printf("starting %s, camera %s:%d, data port %d", version.String(), cfg.CameraAddr, cfg.ControlPort, cfg.DataPort)

	cam := device.NewCamera(cfg.CameraAddr, cfg.ControlPort, cfg.Password)

	pub := publish.NewPublisher()
	pub.Start()
	defer pub.Stop()

	n := node.New(cfg, cam, pub, nil)
	defer n.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the acquisition loop to pull frames off the camera
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := n.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("acquisition loop failed: %v", err)
		}
		log.Print("acquisition loop terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// mount the administrative API and the publisher's debug routes
		mux := api.NewServer(n).ServeMux()
		pub.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
