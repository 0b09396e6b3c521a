package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/matthewbaird/formdesigner/internal/activity"
	"github.com/matthewbaird/formdesigner/internal/builder"
	"github.com/matthewbaird/formdesigner/internal/config"
	"github.com/matthewbaird/formdesigner/internal/event"
	"github.com/matthewbaird/formdesigner/internal/eventbus"
	"github.com/matthewbaird/formdesigner/internal/handler"
	"github.com/matthewbaird/formdesigner/internal/live"
	"github.com/matthewbaird/formdesigner/internal/server"
	"github.com/matthewbaird/formdesigner/internal/store"
	"github.com/matthewbaird/formdesigner/internal/upload"
	"github.com/matthewbaird/formdesigner/internal/worker"
	"github.com/matthewbaird/formdesigner/internal/workflow"
)

func main() {
	configPath := flag.String("config", os.Getenv("FORMDESIGNER_CONFIG"), "path to YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	formBackend, feed, closeDB := openStores(ctx, cfg)
	defer closeDB()

	var workflows *workflow.Store
	if cfg.Storage.WorkflowStore == config.StoreMemory {
		workflows = workflow.NewMemoryStore()
	} else {
		workflows, err = workflow.NewFileStore(cfg.WorkflowFile())
		if err != nil {
			log.Fatalf("opening workflow store: %v", err)
		}
	}

	uploader, err := upload.NewDiskUploader(cfg.Upload.Dir, cfg.Upload.BaseURL, cfg.MaxUploadBytes())
	if err != nil {
		log.Fatalf("opening upload dir: %v", err)
	}
	filePrefix := "/files"
	if u, err := url.Parse(cfg.Upload.BaseURL); err == nil && u.Path != "" {
		filePrefix = u.Path
	}

	bus := eventbus.New(cfg.EventBus.Buffer)
	watcher := eventbus.NewFormWatcher()
	bus.Subscribe("log", eventbus.NewLogConsumer())
	bus.Subscribe("form_watcher", watcher)
	bus.Start(ctx)
	defer bus.Stop()

	recorder := event.NewActivityRecorder(feed)
	recorder.SetPublisher(bus)

	forms := store.NewService(formBackend, nil)
	sessions := builder.NewManager(cfg.Sessions.MaxAge.Std(), cfg.Sessions.IdleTimeout.Std())
	go worker.NewSessionSweeper(sessions, cfg.Sessions.SweepInterval.Std()).Run(ctx)

	liveHandler := live.NewHandler(forms, recorder, watcher)

	if err := server.Run(ctx, server.Config{
		Port: cfg.Port,
		Handlers: []server.Routes{
			handler.NewFormHandler(forms, recorder, liveHandler),
			handler.NewBuilderHandler(sessions, forms, recorder),
			handler.NewWorkflowHandler(workflow.NewService(workflows, uploader), recorder, cfg.MaxUploadBytes()),
			handler.NewFileHandler(uploader, filePrefix),
			handler.NewActivityHandler(feed),
		},
	}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// openStores returns the form backend and activity store selected by cfg.
// The SQLite database is only opened when the form store asks for it.
func openStores(ctx context.Context, cfg *config.Config) (store.Store, activity.Store, func()) {
	if cfg.Storage.FormStore == config.StoreMemory {
		log.Println("using in-memory form and activity stores")
		return store.NewMemoryStore(), activity.NewMemoryStore(), func() {}
	}

	db, err := sql.Open("sqlite", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		log.Fatalf("enabling foreign keys: %v", err)
	}

	forms := store.NewSQLiteStore(db)
	if err := forms.Migrate(ctx); err != nil {
		log.Fatalf("migrating form store: %v", err)
	}
	feed := activity.NewSQLiteStore(db)
	if err := feed.CreateTable(ctx); err != nil {
		log.Fatalf("creating activity table: %v", err)
	}
	log.Println("database migrated successfully")
	return forms, feed, func() { db.Close() }
}
