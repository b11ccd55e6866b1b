package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/dukerupert/basket/internal/backup"
	"github.com/dukerupert/basket/internal/capture"
	"github.com/dukerupert/basket/internal/config"
	"github.com/dukerupert/basket/internal/geo"
	"github.com/dukerupert/basket/internal/handler"
	"github.com/dukerupert/basket/internal/identity"
	"github.com/dukerupert/basket/internal/localstore"
	"github.com/dukerupert/basket/internal/middleware"
	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/notify"
	"github.com/dukerupert/basket/internal/proximity"
	"github.com/dukerupert/basket/internal/remote"
	"github.com/dukerupert/basket/internal/shopping"
	"github.com/dukerupert/basket/internal/store"
	"github.com/dukerupert/basket/internal/syncqueue"
	"github.com/dukerupert/basket/internal/throttle"
	ws "github.com/dukerupert/basket/internal/websocket"
)

type Server struct {
	db        *sql.DB
	hub       *ws.Hub
	notifier  localstore.Notifier
	local     *localstore.Store
	queue     *syncqueue.Queue
	svc       *shopping.Service
	identity  *identity.Handler
	refresher *identity.Refresher
	feed      *proximity.Feed
	tracker   *proximity.Tracker
	backups   *backup.Manager
	syncing   bool

	listH     *handler.ListHandler
	sessionH  *handler.SessionHandler
	locationH *handler.LocationHandler
	pushH     *handler.PushHandler
	backupH   *handler.BackupHandler

	logger *slog.Logger
}

// New wires the daemon. A remote store may be passed in place of the HTTP
// client built from cfg.CloudURL; tests use this to sync against a fake.
func New(cfg config.Config, db *sql.DB, rs remote.Store, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	var notifier localstore.Notifier = localstore.LocalNotifier{}
	if cfg.RedisURL != "" {
		rn, err := localstore.NewRedisNotifier(cfg.RedisURL, logger.With("component", "notifier"))
		if err != nil {
			return nil, fmt.Errorf("redis notifier: %w", err)
		}
		notifier = rn
	}
	local := localstore.New(store.NewSlotStore(db), notifier, logger.With("component", "localstore"))

	qcfg := syncqueue.DefaultConfig()
	qcfg.MaxAttempts = cfg.SyncMaxAttempts
	queue := syncqueue.New(qcfg, logger.With("component", "syncqueue"))

	if rs == nil && cfg.SyncEnabled() {
		rs = remote.NewClient(cfg.CloudURL, cfg.CloudToken)
	}

	svc := shopping.NewService(local, queue, rs, logger.With("component", "shopping"))
	ident := identity.NewHandler(svc, rs, logger.With("component", "identity"))

	svc.OnChange(func(e shopping.Event) {
		if e.Action == "reloaded" {
			hub.Broadcast(ws.Message{Type: ws.TypeListsReloaded, Entity: "list", Action: e.Action})
			return
		}
		hub.Broadcast(ws.NewMessage(e.Entity, e.Action, e.ListID, e.ItemID, nil))
	})
	queue.OnDrop(func(op syncqueue.Operation, err error) {
		hub.Broadcast(ws.Message{
			Type:   ws.TypeSyncError,
			Entity: "sync",
			Action: "dropped",
			Extra:  map[string]any{"operation": op.Name, "error": err.Error()},
		})
	})
	local.Subscribe(func(c localstore.Change) {
		if c.External && c.Namespace == svc.Namespace() {
			hub.Broadcast(ws.Message{Type: ws.TypeListsReloaded, Entity: "list", Action: "reloaded"})
		}
	})

	capturer := capture.New(svc, logger.With("component", "capture"))
	if cfg.CaptureURL != "" {
		base := strings.TrimRight(cfg.CaptureURL, "/")
		capturer.Register(capture.KindVoice, capture.NewHTTPExtractor(base+"/voice", "audio/webm"))
		capturer.Register(capture.KindImage, capture.NewHTTPExtractor(base+"/image", "image/jpeg"))
	}

	tcfg := throttle.DefaultConfig()
	if cfg.CooldownMinutes > 0 {
		tcfg.Cooldown = time.Duration(cfg.CooldownMinutes) * time.Minute
	}
	th := throttle.New(tcfg, store.NewNotificationLogStore(db), logger.With("component", "throttle"))

	pushSt := store.NewPushStore(db)
	webPush := notify.NewWebPush(pushSt, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, logger.With("component", "webpush"))
	dispatcher := notify.Multi{notify.NewHubDispatcher(hub), webPush}

	supermarkets := store.NewSupermarketStore(db)
	cache := geo.NewDistanceCache()
	feed := proximity.NewFeed()
	tracker := proximity.NewTracker(
		supermarkets, svc, th, dispatcher,
		geo.NewRouteClient(cfg.RoutingURL, logger.With("component", "routing")),
		proximity.Config{Threshold: cfg.ProximityMeters, AutoClose: proximity.DefaultAutoClose},
		logger.With("component", "proximity"),
	).WithCache(cache)

	backups := backup.NewManager(BackupConfig(cfg), db, func(st backup.Status) {
		hub.Broadcast(ws.Message{
			Type:   "backup_status",
			Entity: "backup",
			Action: string(st.State),
			Extra: map[string]any{
				"last_key": st.LastKey,
				"error":    st.Error,
			},
		})
	}, logger.With("component", "backup"))

	hub.OnMessage(func(in ws.Inbound) {
		switch in.Type {
		case "location":
			feed.Update(model.Position{Latitude: in.Latitude, Longitude: in.Longitude, Accuracy: in.Accuracy})
		case "online":
			queue.SetOnline(true)
		case "offline":
			queue.SetOnline(false)
		case "alert_dismissed":
			// Dismissed on one device closes it everywhere.
			if err := dispatcher.Close(context.Background(), in.Tag); err != nil {
				logger.Warn("close dismissed alert", "tag", in.Tag, "error", err)
			}
		}
	})

	return &Server{
		db:        db,
		hub:       hub,
		notifier:  notifier,
		local:     local,
		queue:     queue,
		svc:       svc,
		identity:  ident,
		refresher: identity.NewRefresher(ident, cfg.RefreshInterval, logger.With("component", "refresh")),
		feed:      feed,
		tracker:   tracker,
		backups:   backups,
		syncing:   rs != nil,
		listH:     handler.NewListHandler(svc, capturer, logger.With("component", "lists")),
		sessionH:  handler.NewSessionHandler(ident, svc, queue, logger.With("component", "session")),
		locationH: handler.NewLocationHandler(feed, tracker, supermarkets, cache, cfg.ProximityMeters, logger.With("component", "location")),
		pushH:     handler.NewPushHandler(pushSt, webPush, logger.With("component", "push")),
		backupH:   handler.NewBackupHandler(backups, logger.With("component", "backup_handler")),
		logger:    logger,
	}, nil
}

// BackupConfig extracts the snapshot settings from cfg.
func BackupConfig(cfg config.Config) backup.Config {
	return backup.Config{
		Endpoint:   cfg.BackupEndpoint,
		Bucket:     cfg.BackupBucket,
		Region:     cfg.BackupRegion,
		AccessKey:  cfg.BackupAccessKey,
		SecretKey:  cfg.BackupSecretKey,
		Prefix:     cfg.BackupPrefix,
		Passphrase: cfg.BackupPassphrase,
		Interval:   cfg.BackupInterval,
		Retain:     cfg.BackupRetain,
	}
}

// Service returns the mutation API.
func (s *Server) Service() *shopping.Service {
	return s.svc
}

// Queue returns the sync queue.
func (s *Server) Queue() *syncqueue.Queue {
	return s.queue
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Start launches the background workers: change listening, queue draining,
// remote refresh, scheduled backups and proximity tracking.
func (s *Server) Start(ctx context.Context) error {
	s.local.Start(ctx)
	s.queue.Start(ctx)
	if s.syncing {
		s.refresher.Start(ctx)
	}
	s.backups.Start(ctx)
	if err := s.tracker.Start(ctx, s.feed); err != nil {
		return fmt.Errorf("start tracker: %w", err)
	}
	return nil
}

// Close stops the background workers in reverse start order.
func (s *Server) Close() error {
	s.tracker.Stop()
	s.backups.Stop()
	s.refresher.Stop()
	s.queue.Stop()
	s.local.Stop()

	var err error
	if c, ok := s.notifier.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, nil, s.logger.With("component", "websocket")))

	// List API routes
	mux.HandleFunc("GET /api/lists", s.listH.List)
	mux.HandleFunc("POST /api/lists", s.listH.Create)
	mux.HandleFunc("PUT /api/lists/{id}", s.listH.Update)
	mux.HandleFunc("DELETE /api/lists/{id}", s.listH.Delete)
	mux.HandleFunc("POST /api/lists/{id}/reorder", s.listH.Reorder)
	mux.HandleFunc("POST /api/lists/{id}/capture/{kind}", s.listH.Capture)
	mux.HandleFunc("POST /api/undo", s.listH.Undo)

	// Item API routes
	mux.HandleFunc("POST /api/lists/{id}/items", s.listH.AddItem)
	mux.HandleFunc("POST /api/lists/{id}/items/batch", s.listH.AddItems)
	mux.HandleFunc("PUT /api/lists/{id}/items/{item_id}", s.listH.UpdateItem)
	mux.HandleFunc("DELETE /api/lists/{id}/items/{item_id}", s.listH.DeleteItem)
	mux.HandleFunc("POST /api/lists/{id}/items/{item_id}/toggle", s.listH.ToggleItem)

	// Session routes
	mux.HandleFunc("GET /api/session", s.sessionH.Get)
	mux.HandleFunc("POST /api/session/login", s.sessionH.Login)
	mux.HandleFunc("POST /api/session/logout", s.sessionH.Logout)
	mux.HandleFunc("POST /api/network", s.sessionH.Network)

	// Location and supermarket routes
	mux.HandleFunc("POST /api/location", s.locationH.Report)
	mux.HandleFunc("POST /api/location/tracking", s.locationH.Tracking)
	mux.HandleFunc("GET /api/supermarkets", s.locationH.ListSupermarkets)
	mux.HandleFunc("POST /api/supermarkets", s.locationH.CreateSupermarket)
	mux.HandleFunc("GET /api/supermarkets/nearby", s.locationH.Nearby)

	// Push notification routes
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)

	// Backup routes
	mux.HandleFunc("GET /api/backup", s.backupH.Status)
	mux.HandleFunc("POST /api/backup", s.backupH.Run)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
