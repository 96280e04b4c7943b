package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gradewatch-backend/lib/browser"
	"gradewatch-backend/lib/coursecache"
	"gradewatch-backend/lib/notify"
	"gradewatch-backend/lib/serviceutil"
	"gradewatch-backend/lib/telemetry"
	"gradewatch-backend/services/grades"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := flag.String("config", "config.json5", "specify the path to a config file")
	flag.Parse()

	config := MustLoadConfig(*cfgPath)
	telemetry.InitSlog(config.Verbose)

	ctx := serviceutil.SignalContext()

	tel, err := telemetry.Setup(ctx, "gradewatch", config.Telemetry)
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer func() {
		err := tel.Shutdown(context.Background())
		if err != nil {
			slog.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	slog.Info("launching browser...")

	manager := browser.NewManager(config.Browser)
	// a broken Chrome install must be fatal here, not mid-request
	err = manager.Start()
	if err != nil {
		serviceutil.Fatal("failed to launch browser", err)
	}
	defer manager.Shutdown()

	cache := coursecache.Open(config.CacheFile)
	slog.Info("loaded grade cache", "path", config.CacheFile, "courses", cache.Len())

	notifier := notify.Multi{}
	if config.Notify.Desktop {
		notifier = append(notifier, notify.Desktop{Icon: config.Notify.Icon})
	}
	if config.Notify.Webhook != "" {
		notifier = append(notifier, notify.NewWebhook(config.Notify.Webhook))
	}

	service := grades.NewService(
		grades.NewBrowserSource(manager),
		cache,
		notifier,
		grades.Config{
			LoginURL:  config.LoginUrl,
			GradesURL: config.GradesUrl,
		},
	)

	if !config.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	grades.RegisterRoutes(router, service)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: router,
	}

	go func() {
		slog.Info("listening...", "port", config.Port)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceutil.Fatal("failed to serve http", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	if err != nil {
		slog.Error("failed to shutdown http server", "err", err)
	}
}
