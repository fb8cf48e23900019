package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"standings/internal/standings"
	"standings/pkg/cache"
	"standings/pkg/config"
	"standings/pkg/logger"
	"standings/pkg/store"
)

func main() {
	addr := flag.String("addr", ":8082", "HTTP server address")
	configPath := flag.String("config", "", "optional config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, "seeder")
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := store.Connect(ctx, cfg.MongoDB.URI, cfg.MongoDB.ConnectTimeout, l)
	if err != nil {
		l.Error("failed to connect to mongodb", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	mongoStore := store.NewMongoStore(client.Database(cfg.MongoDB.Database))
	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		l.Error("failed to create indexes", err)
		os.Exit(1)
	}

	// writes only; nothing is read back through this cache
	svc := standings.NewService(l, mongoStore, cache.New(cache.NewMemory(), nil, l))
	s := &seeder{store: mongoStore, service: svc, logger: l, gen: newGenerator(time.Now().UnixNano())}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/events/{eventID}", s.seedEvent)
	r.Post("/groups/{groupID}/matches", s.seedMatch)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{Addr: *addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		l.Info("seeder server starting", zap.String("addr", *addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			l.Error("server failed", err)
			stop()
		}
	}()

	<-ctx.Done()
	l.Info("shutting down seeder server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

type seeder struct {
	store   *store.MongoStore
	service *standings.Service
	logger  *logger.Logger
	gen     *generator
}

// seedEvent creates an event with the groups named in ?group=
func (s *seeder) seedEvent(w http.ResponseWriter, r *http.Request) {
	ev := store.Event{ID: chi.URLParam(r, "eventID"), Name: r.URL.Query().Get("name")}
	if ev.Name == "" {
		ev.Name = ev.ID
	}
	for _, g := range r.URL.Query()["group"] {
		ev.Groups = append(ev.Groups, store.Group{ID: g, Name: g})
	}

	if err := s.store.UpsertEvent(r.Context(), ev); err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, ev)
}

// seedMatch records a random result as the group's next match
func (s *seeder) seedMatch(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	schedule, err := s.store.ListSchedule(r.Context(), groupID)
	if err != nil {
		s.fail(w, err)
		return
	}

	opts := parseOptions(r.URL.Query())
	m := s.gen.Match(r.URL.Query().Get("event"), groupID, len(schedule)+1, opts)
	recorded, err := s.service.RecordResult(r.Context(), m)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, recorded)
}

func (s *seeder) reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *seeder) fail(w http.ResponseWriter, err error) {
	s.logger.Error("seed failed", err)
	status := http.StatusInternalServerError
	if errors.Is(err, standings.ErrInvalidResult) {
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}
