package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/app"
	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/internal/service"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
	"github.com/noah-isme/lms-enrollment-sync/pkg/logger"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

func main() {
	entityFlag := flag.String("entity", "students", "entity to synchronize: students or courses")
	fullSync := flag.Bool("full", false, "walk every page instead of the first one")
	pageSize := flag.Int("page-size", 0, "records per page, 0 uses SYNC_DEFAULT_PAGE_SIZE")
	offline := flag.Bool("offline", false, "treat the LMS as offline")
	mintToken := flag.String("mint-token", "", "print an admin token for the given user id and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *mintToken != "" {
		token, err := service.NewTokenService(cfg.JWT).IssueToken(*mintToken, models.RoleAdmin, 24*time.Hour)
		if err != nil {
			log.Fatalf("failed to sign token: %v", err)
		}
		fmt.Println(token)
		return
	}

	entity, err := models.ParseEntityType(*entityFlag)
	if err != nil {
		log.Fatalf("invalid -entity: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	os.Exit(run(cfg, logr, entity, service.SyncOptions{FullSync: *fullSync, PageSize: *pageSize, Offline: *offline}))
}

func run(cfg *config.Config, logr *zap.Logger, entity models.EntityType, opts service.SyncOptions) int {
	defer logr.Sync() //nolint:errcheck

	application, err := app.New(cfg, logr)
	if err != nil {
		logr.Error("failed to build application", zap.Error(err))
		return exitFailed
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !opts.Offline {
		opts.Offline = application.Connectivity.IsOffline(ctx)
	}
	if opts.PageSize == 0 {
		opts.PageSize = application.Sync.DefaultPageSize()
	}

	result, err := application.Sync.Synchronize(ctx, entity, opts)
	if result != nil {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(result)
	}
	switch {
	case errors.Is(err, appErrors.ErrSyncCancelled):
		logr.Warn("sync cancelled", zap.Error(err))
		return exitPartial
	case err != nil:
		logr.Error("sync failed", zap.Error(err))
		return exitFailed
	case result.Partial():
		return exitPartial
	case result.Failed > 0:
		return exitFailed
	default:
		return exitOK
	}
}
