package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/agent"
	"github.com/mikeboe/deep-research/pkg/archive"
	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/tools"
)

// Service owns the shared collaborators (models, search, fetch, archive)
// and runs one background worker goroutine per research job.
type Service struct {
	DB  *database.PostgresDB
	Cfg *config.Config

	smart    llms.Model
	cheap    llms.Model
	searcher agent.SearchProvider
	fetcher  agent.Fetcher
	embedder *embeddings.GoogleEmbedder

	indexer *archive.Indexer
	qa      *archive.QAService

	events *eventBroker
	logger *slog.Logger
}

// NewService builds every collaborator once; per-job engines share them.
func NewService(ctx context.Context, db *database.PostgresDB, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	smart, err := clients.GoogleAI(ctx, cfg.GoogleApiKey, cfg.ReasoningModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning model: %w", err)
	}
	cheap, err := clients.GoogleAI(ctx, cfg.GoogleApiKey, cfg.FastModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast model: %w", err)
	}
	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	indexer := archive.NewIndexer(db, embedder, cfg.CollectionName, cfg.ChunkSize, cfg.ChunkOverlap, logger)
	if err := indexer.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare archive: %w", err)
	}

	return &Service{
		DB:       db,
		Cfg:      cfg,
		smart:    smart,
		cheap:    cheap,
		searcher: tools.NewTavilyClient(cfg.TavilyApiKey, cfg.SearchDepth, logger),
		fetcher:  tools.NewHTTPFetcher(logger),
		embedder: embedder,
		indexer:  indexer,
		qa:       archive.NewQAService(db, embedder, cfg.GoogleApiKey, cfg.ReasoningModel, cfg.CollectionName, logger),
		events:   newEventBroker(),
		logger:   logger,
	}, nil
}

type Job struct {
	ID         uuid.UUID       `json:"id"`
	Question   string          `json:"question"`
	Status     string          `json:"status"`
	Report     *string         `json:"report,omitempty"`
	StopReason *string         `json:"stop_reason,omitempty"`
	CostUSD    float64         `json:"cost_usd"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Config     json.RawMessage `json:"config,omitempty"`
	State      json.RawMessage `json:"state,omitempty"`
}

type CreateJobRequest struct {
	Question string `json:"question"`
}

// CreateJob validates the question, persists a pending job and starts its
// worker. A question the guardrails reject never reaches the database.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	question, err := agent.ValidateQuery(req.Question)
	if err != nil {
		return nil, err
	}

	configJSON, _ := json.Marshal(s.Cfg.AgentConfig())

	jobID := uuid.New()
	query := `
		INSERT INTO research_jobs (id, question, status, config)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id, question, status, created_at, updated_at
	`

	job := &Job{}
	err = s.DB.Pool.QueryRow(ctx, query, jobID, question, configJSON).Scan(
		&job.ID, &job.Question, &job.Status, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	go s.runWorker(job.ID, question)

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `
		SELECT id, question, status, report, stop_reason, cost_usd, created_at, updated_at, config, state
		FROM research_jobs
		WHERE id = $1
	`
	job := &Job{}
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Question, &job.Status, &job.Report, &job.StopReason,
		&job.CostUSD, &job.CreatedAt, &job.UpdatedAt, &job.Config, &job.State,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	query := `
		SELECT id, question, status, report, stop_reason, cost_usd, created_at, updated_at
		FROM research_jobs
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.Question, &job.Status, &job.Report,
			&job.StopReason, &job.CostUSD, &job.CreatedAt, &job.UpdatedAt); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

type EventEntry struct {
	ID      int       `json:"id"`
	Round   int       `json:"round"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// GetJobEvents returns the persisted progress log, for replay and for
// SSE catch-up after reconnects.
func (s *Service) GetJobEvents(ctx context.Context, jobID uuid.UUID) ([]EventEntry, error) {
	query := `
		SELECT id, round, stage, message, created_at
		FROM research_events
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []EventEntry
	for rows.Next() {
		var e EventEntry
		if err := rows.Scan(&e.ID, &e.Round, &e.Stage, &e.Message, &e.Time); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Ask answers a follow-up question about one finished, archived job.
func (s *Service) Ask(ctx context.Context, jobID uuid.UUID, question string) (string, error) {
	archived, err := s.indexer.HasRun(ctx, jobID.String())
	if err != nil {
		return "", err
	}
	if !archived {
		return "", fmt.Errorf("job %s has no archived findings", jobID)
	}
	return s.qa.Ask(ctx, jobID.String(), question)
}

// runWorker executes one research job end to end. The engine never
// returns an error: whatever terminal state it reaches is the job result.
func (s *Service) runWorker(jobID uuid.UUID, question string) {
	ctx := context.Background()

	_, _ = s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET status = 'running', updated_at = NOW() WHERE id = $1", jobID)

	dbLogger := slog.New(NewDBLogHandler(s.DB, jobID))

	sink := func(ev agent.ProgressEvent) {
		_, err := s.DB.Pool.Exec(context.Background(),
			"INSERT INTO research_events (job_id, round, stage, message, created_at) VALUES ($1, $2, $3, $4, $5)",
			jobID, ev.Round, ev.Stage, ev.Message, ev.Timestamp)
		if err != nil {
			s.logger.Error("failed to persist progress event", "job_id", jobID, "error", err)
		}
		s.events.publish(jobID, ev)
	}

	engine := agent.NewEngine(s.Cfg.AgentConfig(), s.smart, s.cheap, s.searcher, s.fetcher,
		agent.WithLogger(dbLogger),
		agent.WithEmbedder(s.embedder),
		agent.WithProgressSink(sink),
	)
	engine.OnStateUpdate = func(state agent.ResearchState) {
		stateJSON, err := json.Marshal(state)
		if err != nil {
			dbLogger.Error("failed to marshal state", "error", err)
			return
		}
		if _, err := s.DB.Pool.Exec(context.Background(),
			"UPDATE research_jobs SET state = $2, updated_at = NOW() WHERE id = $1",
			jobID, stateJSON); err != nil {
			dbLogger.Error("failed to save state", "error", err)
		}
	}

	state := engine.Run(ctx, question)

	stateJSON, err := json.Marshal(state)
	if err != nil {
		dbLogger.Error("failed to marshal final state", "error", err)
		stateJSON = []byte("{}")
	}
	_, err = s.DB.Pool.Exec(ctx, `
		UPDATE research_jobs
		SET status = $2, report = $3, stop_reason = $4, cost_usd = $5, state = $6, updated_at = NOW()
		WHERE id = $1`,
		jobID, string(state.Status), state.Report, state.StopReason, state.CostUSD, stateJSON)
	if err != nil {
		dbLogger.Error("failed to save final result", "error", err)
	}

	s.events.finish(jobID)

	// Archive findings so the Q&A endpoint can answer follow-ups.
	if state.TotalSources() > 0 || state.Report != "" {
		if err := s.indexer.IndexRun(ctx, jobID.String(), state); err != nil {
			dbLogger.Error("failed to archive run", "error", err)
		}
	}
}
