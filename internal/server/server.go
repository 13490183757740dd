package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	openai "github.com/sashabaranov/go-openai"

	"artorias-backend/internal/bot"
	"artorias-backend/internal/config"
	"artorias-backend/internal/db"
	"artorias-backend/internal/store"
	"artorias-backend/internal/types"
)

const transcriptTTL = 30 * time.Minute

type Server struct {
	router    *chi.Mux
	cfg       config.Config
	bot       *bot.Bot
	store     *store.MemoryStore
	database  *db.DB
	records   *store.RecordStore
	sweepDone chan struct{}
	closeOnce sync.Once
}

func NewServer(cfg config.Config) (*Server, error) {
	prompt, err := bot.LoadPromptSpec(cfg.PromptFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt spec: %w", err)
	}

	client := newOpenAIClient(cfg)
	ms := store.NewMemoryStore(cfg.MaxTurns, transcriptTTL)

	// Database is optional; intake records are simply not persisted without it.
	var database *db.DB
	var records *store.RecordStore
	if cfg.DatabaseURL != "" {
		database, err = db.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		log.Println("database connection established")
		if err := database.RunMigrations(cfg.MigrationsDir); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		records = store.NewRecordStore(database)
	} else {
		log.Println("warning: DB_URL not provided, intake records will not be persisted")
	}

	// YAML style knobs win over env defaults when set.
	temperature := prompt.Style.Temperature
	if temperature <= 0 {
		temperature = cfg.Temperature
	}
	maxTokens := prompt.Style.MaxTokens
	if maxTokens <= 0 {
		maxTokens = cfg.MaxTokens
	}
	gateway := bot.NewGateway(client, cfg.Model, temperature, maxTokens, cfg.ChatTimeout)

	var sink bot.RecordSink
	if records != nil {
		sink = records
	}
	b := bot.New(prompt, gateway, ms, sink)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		router:    r,
		cfg:       cfg,
		bot:       b,
		store:     ms,
		database:  database,
		records:   records,
		sweepDone: make(chan struct{}),
	}
	s.routes()

	// Periodic eviction of idle transcripts, stopped by Close.
	go func() {
		ticker := time.NewTicker(transcriptTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ms.Sweep()
			case <-s.sweepDone:
				return
			}
		}
	}()

	return s, nil
}

func newOpenAIClient(cfg config.Config) *openai.Client {
	if cfg.OpenAIBaseURL != "" {
		c := openai.DefaultConfig(cfg.OpenAIAPIKey)
		c.BaseURL = cfg.OpenAIBaseURL
		return openai.NewClientWithConfig(c)
	}
	return openai.NewClient(cfg.OpenAIAPIKey)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Post("/api/chat", s.handleChat)
	s.router.Get("/api/records", s.handleRecords)
}

func (s *Server) Router() http.Handler { return s.router }

// Close stops the transcript sweeper and releases the database connection,
// if any.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.sweepDone) })
	if s.database != nil {
		return s.database.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.database != nil {
		if err := s.database.HealthCheck(); err != nil {
			status["database"] = "unreachable"
		} else {
			status["database"] = "ok"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	// Explicit userId wins; otherwise a stable id comes from the session cookie.
	uid := strings.TrimSpace(req.UserID)
	if uid == "" {
		uid = getOrCreateUserID(r, w)
	}

	reply, _, err := s.bot.Process(r.Context(), uid, strings.TrimSpace(req.Message))
	if err != nil {
		if !errors.Is(err, bot.ErrCompletionFailure) {
			log.Printf("[chat] unexpected pipeline error for %s: %v", uid, err)
			s.writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		log.Printf("[chat] completion failed for %s: %v", uid, err)
		reply = bot.ApologyReply
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Session-Id", uid)
	_ = json.NewEncoder(w).Encode(types.ChatResponse{UserID: uid, Response: reply})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		s.writeError(w, http.StatusServiceUnavailable, "record persistence is not configured")
		return
	}
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	if action != "" && action != bot.ActionSDRCompleted && action != bot.ActionSupportEscalated {
		s.writeError(w, http.StatusBadRequest, "unknown action filter")
		return
	}

	recs, err := s.records.List(action, 50)
	if err != nil {
		log.Printf("[records] list failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	out := types.RecordsResponse{Records: make([]types.RecordView, 0, len(recs))}
	for _, rec := range recs {
		out.Records = append(out.Records, types.RecordView{
			ID:        rec.ID,
			UserID:    rec.UserID,
			Action:    rec.Action,
			Fields:    rec.Fields,
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg})
}
