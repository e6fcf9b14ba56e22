package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haven-automation/haven-hub/internal/adapters"
	"github.com/haven-automation/haven-hub/internal/adapters/acmeda"
	"github.com/haven-automation/haven-hub/internal/adapters/elmax"
	"github.com/haven-automation/haven-hub/internal/adapters/nordpool"
	"github.com/haven-automation/haven-hub/internal/adapters/plaato"
	"github.com/haven-automation/haven-hub/internal/adapters/somfy"
	"github.com/haven-automation/haven-hub/internal/adapters/uptimerobot"
	"github.com/haven-automation/haven-hub/internal/api"
	"github.com/haven-automation/haven-hub/internal/api/handlers"
	"github.com/haven-automation/haven-hub/internal/config"
	"github.com/haven-automation/haven-hub/internal/core/backup"
	"github.com/haven-automation/haven-hub/internal/core/dispatcher"
	"github.com/haven-automation/haven-hub/internal/core/entities"
	"github.com/haven-automation/haven-hub/internal/core/entries"
	"github.com/haven-automation/haven-hub/internal/core/flow"
	"github.com/haven-automation/haven-hub/internal/core/metrics"
	"github.com/haven-automation/haven-hub/internal/core/system"
	"github.com/haven-automation/haven-hub/internal/core/types/registries"
	"github.com/haven-automation/haven-hub/internal/core/webhook"
	"github.com/haven-automation/haven-hub/internal/database"
	"github.com/haven-automation/haven-hub/internal/history"
	"github.com/haven-automation/haven-hub/internal/mqtt"
	"github.com/haven-automation/haven-hub/internal/websocket"
	"github.com/haven-automation/haven-hub/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	db, err := database.Initialize(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	repos := database.NewRepositories(db)

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	entityReg := registries.NewEntityRegistry(log)
	adapterReg := registries.NewAdapterRegistry(log)

	wsHub := websocket.NewHub(log)
	wsHub.SetClientGauge(m.WebsocketClients)
	go wsHub.Run()

	entitySvc := entities.NewService(entityReg, adapterReg, repos.Entity, repos.Device, m, log)
	entitySvc.AddListener(wsHub)

	// Optional bridges hang off the same state-listener fan-out
	var mqttBridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		mqttBridge, err = mqtt.NewBridge(cfg.MQTT, log)
		if err != nil {
			log.WithError(err).Warn("MQTT bridge disabled")
		} else if err := mqttBridge.Connect(); err != nil {
			log.WithError(err).Warn("MQTT broker unreachable, bridge disabled")
			mqttBridge = nil
		} else {
			entitySvc.AddListener(mqttBridge)
		}
	}

	var recorder *history.Recorder
	if cfg.History.Enabled {
		recorder, err = history.NewRecorder(cfg.History, log)
		if err != nil {
			log.WithError(err).Warn("History recorder disabled")
			recorder = nil
		} else {
			entitySvc.AddListener(recorder)
		}
	}

	dispatch := dispatcher.New(log)
	webhookReg := webhook.NewRegistry(log)

	entryMgr := entries.NewManager(repos.Entry, log)
	flowMgr := flow.NewManager(log)
	flowMgr.Wire(entryMgr.Create, entryMgr.UpdateData, entryMgr.HasEntry)
	entryMgr.SetReauthFunc(func(ctx context.Context, domain, entryID string) {
		if _, err := flowMgr.Init(ctx, domain, flow.KindReauth, entryID); err != nil {
			log.WithError(err).WithField("domain", domain).Warn("Failed to open reauth flow")
		}
	})
	entryMgr.AddStateListener(func(entry *entries.ConfigEntry) {
		wsHub.BroadcastToAll(websocket.EntryStateChangedMessage(entry.ID, entry.Domain, string(entry.State), entry.Reason))
		updateEntryGauges(m, entryMgr)
	})

	systemSvc := system.NewService(log)

	backupSvc := backup.NewService(cfg.Backup, cfg.Database.Path, log)
	if err := backupSvc.Start(); err != nil {
		log.WithError(err).Warn("Backup scheduler disabled")
	}

	services := &adapters.Services{
		Config:   cfg,
		Logger:   log,
		Entities: entitySvc,
		Entries:  entryMgr,
		Flows:    flowMgr,
		Adapters: adapterReg,
		Webhooks: webhookReg,
		Dispatch: dispatch,
		Metrics:  m,
	}
	uptimerobot.Register(services)
	acmeda.Register(services)
	elmax.Register(services)
	plaato.Register(services)
	nordpool.Register(services)
	somfy.Register(services)

	// Repopulate the registries before integrations start so entities
	// reappear with their last known state, marked unavailable until the
	// first coordinator refresh confirms them
	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := entitySvc.Restore(restoreCtx); err != nil {
		log.WithError(err).Warn("Failed to restore entity registry")
	}
	restoreCancel()

	// Restore persisted entries; failures park individual entries in
	// retry or reauth without blocking startup
	loadCtx, loadCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := entryMgr.LoadAll(loadCtx); err != nil {
		log.WithError(err).Error("Failed to restore config entries")
	}
	loadCancel()

	h := handlers.New(cfg, log, entitySvc, entryMgr, flowMgr, adapterReg, webhookReg, systemSvc, backupSvc, wsHub, m)
	router := api.NewRouter(cfg, h, log, wsHub, promRegistry)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Starting Haven Hub on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entryMgr.Shutdown(ctx)
	backupSvc.Stop()
	if recorder != nil {
		recorder.Close()
	}
	if mqttBridge != nil {
		mqttBridge.Close()
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}
	log.Info("Server exited")
}

func updateEntryGauges(m *metrics.Metrics, entryMgr *entries.Manager) {
	counts := make(map[entries.EntryState]int)
	for _, entry := range entryMgr.List() {
		counts[entry.State]++
	}
	m.EntriesByState.Reset()
	for state, count := range counts {
		m.EntriesByState.WithLabelValues(string(state)).Set(float64(count))
	}
}
