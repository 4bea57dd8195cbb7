/* Copyright (c) 2025 Sprintpilot contributors
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sprintpilot/sprintpilot/internal/adapters/jira"
	"github.com/sprintpilot/sprintpilot/internal/ai"
	"github.com/sprintpilot/sprintpilot/internal/config"
	"github.com/sprintpilot/sprintpilot/internal/domain"
	httpx "github.com/sprintpilot/sprintpilot/internal/http"
	"github.com/sprintpilot/sprintpilot/internal/jobs"
	"github.com/sprintpilot/sprintpilot/internal/logger"
	"github.com/sprintpilot/sprintpilot/internal/repo"
	"github.com/sprintpilot/sprintpilot/internal/services"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := repo.MustOpen(ctx, cfg, log)
	defer db.Close()

	repository := repo.NewRepository(db, log)
	{
		ctx2, cancel2 := context.WithTimeout(ctx, 30*time.Second)
		if err := repository.EnsureSchema(ctx2); err != nil {
			log.Fatal().Err(err).Msg("schema init failed")
		}
		cancel2()
	}

	aiFactory := ai.NewFactory(cfg, log)
	trackerFactory := func(jc domain.JiraConfig) services.TrackerClient {
		return jira.NewClient(jc, cfg.JiraTimeout, cfg.StoryPointsField, log)
	}

	svc := services.New(cfg, log, repository, trackerFactory, aiFactory)

	router := httpx.NewRouter(cfg, log, svc, repository.ResolveUserToken)

	cron := jobs.NewCron(cfg, log, svc, repository)
	cron.Start()
	defer cron.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- router.Run(cfg.HTTPAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}
	// let in-flight handlers drain before the pool closes
	time.Sleep(500 * time.Millisecond)
}
