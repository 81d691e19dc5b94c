// Package server wires stores, the notification stack, and HTTP
// handlers into a single router for the planner service.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/campusmate/planner/internal/backup"
	"github.com/campusmate/planner/internal/config"
	"github.com/campusmate/planner/internal/handler"
	"github.com/campusmate/planner/internal/kv"
	"github.com/campusmate/planner/internal/middleware"
	"github.com/campusmate/planner/internal/notify"
	"github.com/campusmate/planner/internal/reminder"
	"github.com/campusmate/planner/internal/store"
	ws "github.com/campusmate/planner/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	plannerH      *handler.PlannerHandler
	reminderH     *handler.ReminderHandler
	pushH         *handler.PushHandler
	searchH       *handler.SearchHandler
	backupH       *handler.BackupHandler
	rateLimiter   *middleware.RateLimiter
	dispatcher    *notify.Dispatcher
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	kvStore := kv.New(db)
	plannerStore := store.NewPlannerStore(kvStore, logger.With("component", "planner_store"))
	reminderStore := store.NewReminderStore(kvStore, logger.With("component", "reminder_store"))

	subs := notify.NewSubscriptionStore(db)
	pushSvc := notify.NewWebPush(db, subs, notify.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.PushSubscriber,
	}, logger.With("component", "webpush"))

	onChange := func(entity, action, id string) {
		hub.Broadcast(ws.Change{Entity: entity, Action: action, ID: id})
	}
	coord := reminder.NewCoordinator(reminderStore, plannerStore, pushSvc, onChange, logger.With("component", "coordinator"))

	// The coordinator rolls recurring reminders forward after their
	// notification fires.
	dispatcher := notify.NewDispatcher(pushSvc, cfg.DispatchInterval, coord.HandleDelivered, logger.With("component", "dispatcher"))

	var backupMgr *backup.Manager
	var backupH *handler.BackupHandler
	if cfg.BackupEnabled() {
		backupMgr = backup.NewManager(backup.Config{
			S3: backup.S3Config{
				Endpoint:  cfg.BackupEndpoint,
				Bucket:    cfg.BackupBucket,
				Region:    cfg.BackupRegion,
				AccessKey: cfg.BackupAccessKey,
				SecretKey: cfg.BackupSecretKey,
			},
			DBPath:     cfg.DBPath,
			Passphrase: cfg.BackupPassphrase,
			Interval:   cfg.BackupInterval,
		}, db, logger.With("component", "backup"), func(s backup.Status) {
			hub.Broadcast(ws.Change{Entity: "backup", Action: string(s.State), ID: s.LastKey})
		})
		backupH = handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler"))
	}

	return &Server{
		db:            db,
		hub:           hub,
		plannerH:      handler.NewPlannerHandler(plannerStore, coord, hub, logger.With("component", "planner_handler")),
		reminderH:     handler.NewReminderHandler(reminderStore, coord, logger.With("component", "reminder_handler")),
		pushH:         handler.NewPushHandler(subs, pushSvc, logger.With("component", "push_handler")),
		searchH:       handler.NewSearchHandler(plannerStore, reminderStore, logger.With("component", "search_handler")),
		backupH:       backupH,
		rateLimiter:   middleware.NewRateLimiter(),
		dispatcher:    dispatcher,
		backupManager: backupMgr,
		logger:        logger,
	}
}

// Dispatcher returns the notification dispatcher for lifecycle control.
func (s *Server) Dispatcher() *notify.Dispatcher {
	return s.dispatcher
}

// BackupManager returns the backup manager, or nil when backups are
// not configured.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Planner entries
	mux.HandleFunc("POST /api/planner", s.plannerH.Create)
	mux.HandleFunc("GET /api/planner", s.plannerH.List)
	mux.HandleFunc("GET /api/planner/analytics", s.plannerH.Analytics)
	mux.HandleFunc("GET /api/planner/{id}", s.plannerH.Get)
	mux.HandleFunc("PUT /api/planner/{id}", s.plannerH.Update)
	mux.HandleFunc("DELETE /api/planner/{id}", s.plannerH.Delete)
	mux.HandleFunc("POST /api/planner/{id}/toggle", s.plannerH.ToggleCompletion)
	mux.HandleFunc("POST /api/planner/{id}/subtasks/{subtaskId}/toggle", s.plannerH.ToggleSubtask)

	// Notice reminders
	mux.HandleFunc("GET /api/reminders", s.reminderH.List)
	mux.HandleFunc("GET /api/reminders/{newsId}", s.reminderH.Get)
	mux.HandleFunc("PUT /api/reminders/{newsId}", s.reminderH.Upsert)
	mux.HandleFunc("DELETE /api/reminders/{newsId}", s.reminderH.Delete)
	mux.HandleFunc("POST /api/reminders/{newsId}/snooze", s.reminderH.Snooze)
	mux.HandleFunc("POST /api/reminders/{newsId}/advance", s.reminderH.Advance)

	// Push subscriptions
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("POST /api/push/subscribe", s.rateLimitedHandler(s.pushH.Subscribe))
	mux.HandleFunc("DELETE /api/push/subscribe", s.pushH.Unsubscribe)

	// Search across entries and reminders
	mux.HandleFunc("GET /api/search", s.searchH.Search)

	// Backups
	if s.backupH != nil {
		mux.HandleFunc("GET /api/backup/status", s.backupH.Status)
		mux.HandleFunc("POST /api/backup/run", s.backupH.Trigger)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.Handler(s.hub, s.logger.With("component", "ws_handler")))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
