package skillswap

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/skillswap/skillswap/core"
	"github.com/skillswap/skillswap/store"
)

type App struct {
	config  *Config
	db      *core.SQLiteDB
	context context.Context
	server  *http.Server
	logger  *slog.Logger
	router  chi.Router

	rooms       *core.RoomRegistry
	presence    core.Presence
	gateway     *core.Gateway
	relay       *core.ChatRelay
	eventRouter *core.EventRouter

	chatStore store.ChatStore

	chatHandler *ChatHandler

	exit chan int

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

func New(ctx context.Context, config *Config) *App {
	var err error
	app := &App{
		exit: make(chan int),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		config, err = LoadConfig()
		if err != nil {
			failed(1, "failed to load config: %v\n", err)
		}
	}
	if err := config.Validate(); err != nil {
		failed(1, FormatValidationErrors(err))
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	sqliteOptions := &core.SQLiteDBOption{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	}
	app.db, err = core.NewSQLiteDB(app.config.SQLite.File, app.config.SQLite.Migrations, sqliteOptions)
	if err != nil {
		failed(1, "failed to open database: %v\n", err)
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})
	if err := app.db.Migrate(); err != nil {
		failed(1, "failed to migrate database: %v\n", err)
	}

	app.chatStore = store.NewSQLiteChatStore(app.db.DB)

	authenticator, err := core.NewAuthenticator(
		core.TrustMode(app.config.Gateway.TrustMode), app.config.Gateway.Secret)
	if err != nil {
		failed(1, "failed to build authenticator: %v\n", err)
	}

	switch app.config.Presence.Backend {
	case "redis":
		redisPresence, err := core.NewRedisPresence(core.RedisPresenceConfig{
			Address:   app.config.Presence.Redis.Address,
			Password:  app.config.Presence.Redis.Password,
			DB:        app.config.Presence.Redis.DB,
			KeyPrefix: app.config.Presence.Redis.KeyPrefix,
		})
		if err != nil {
			failed(1, "failed to connect presence backend: %v\n", err)
		}
		app.AddCleanupFunc(func(ctx context.Context) {
			redisPresence.Close()
		})
		app.presence = redisPresence
	default:
		app.presence = core.NewMemoryPresence()
	}

	app.rooms = core.NewRoomRegistry()
	app.gateway = core.NewGateway(app.context, &app.wg, app.logger,
		authenticator, app.presence, app.rooms)
	app.relay = core.NewChatRelay(app.gateway, app.rooms, app.chatStore, app.logger)

	app.eventRouter = core.NewEventRouter(app.context, app.logger, app.gateway.Events())
	app.eventRouter.On(core.EventAuthenticate, app.gateway.HandleAuthenticate)
	app.eventRouter.On(core.EventJoinRoom, app.gateway.HandleJoinRoom)
	app.eventRouter.On(core.EventLeaveRoom, app.gateway.HandleLeaveRoom)
	app.eventRouter.On(core.EventSendMessage, app.relay.HandleSendMessage)
	app.eventRouter.On(core.EventMarkRead, app.relay.HandleMarkRead)
	app.eventRouter.On(core.EventTyping, app.relay.HandleTyping)
	app.eventRouter.On(core.EventStopTyping, app.relay.HandleStopTyping)

	app.chatHandler = NewChatHandler(app.chatStore, app.presence)
	identityMiddleware := IdentityMiddleware(authenticator)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id"},
		AllowCredentials: true,
	}))

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := app.gateway.Connect(w, r); err != nil {
			app.logger.Error(fmt.Sprintf("ws connect: %v", err))
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(identityMiddleware)
		r.Post("/chats", app.chatHandler.CreateChatHandler)
		r.Get("/chats/{chatID}", app.chatHandler.GetChatHandler)
		r.Get("/chats/{chatID}/messages", app.chatHandler.GetChatMessagesHandler)
		r.Get("/users/me/chats", app.chatHandler.GetMyChatsHandler)
		r.Get("/presence", app.chatHandler.GetPresenceHandler)
	})

	app.router = r

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}

	return app
}

func (app *App) Start() {
	app.eventRouter.Listen(&app.wg)
	app.AddCleanupFunc(func(ctx context.Context) {
		app.gateway.Close()
	})

	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		var wg sync.WaitGroup

		for _, f := range app.cleanupFuncs {
			wg.Add(1)
			go func(f func(context.Context)) {
				defer wg.Done()
				f(closeCtx)
			}(f)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
			app.exit <- 0
		case <-closeCtx.Done():
			app.logger.Info("app shutdown timed out")
			app.exit <- 1
		}
	}()

	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})
	app.logger.Info(fmt.Sprintf("app running in %s trust mode on: %s:%d",
		app.config.Gateway.TrustMode, app.config.Hostname, app.config.Port))

	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	if code != 0 {
		failed(code, "app exit with code: %d\n", code)
	} else {
		os.Exit(code)
	}
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
