package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"
)

const qaInstruction = `You answer follow-up questions about completed research runs.
Ground every answer in archived findings: ALWAYS call search_findings first, and use
find_by_url when the user asks about a specific source. If the archive contains nothing
relevant, say so plainly instead of guessing. Cite source URLs inline when you use them.`

// QAService answers one-shot follow-up questions against the findings
// archive, grounded by the archive toolset.
type QAService struct {
	db             *database.PostgresDB
	embedder       *embeddings.GoogleEmbedder
	apiKey         string
	reasoningModel string
	collection     string
	logger         *slog.Logger
}

// NewQAService wires the follow-up Q&A agent.
func NewQAService(db *database.PostgresDB, embedder *embeddings.GoogleEmbedder, apiKey, reasoningModel, collection string, logger *slog.Logger) *QAService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QAService{
		db:             db,
		embedder:       embedder,
		apiKey:         apiKey,
		reasoningModel: reasoningModel,
		collection:     collection,
		logger:         logger,
	}
}

// Ask answers a single question about one archived run. Each call builds
// a fresh agent scoped to that run; there is no conversation state.
func (s *QAService) Ask(ctx context.Context, runID, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question is empty")
	}

	modelClient, err := gemini.NewModel(ctx, s.reasoningModel, &genai.ClientConfig{
		APIKey: s.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create model: %w", err)
	}

	toolset := NewFindingsToolset(s.db, s.embedder, s.collection, runID)

	qaAgent, err := llmagent.New(llmagent.Config{
		Name:        "findings_qa",
		Model:       modelClient,
		Description: "Answers questions about archived research findings.",
		Instruction: qaInstruction,
		Toolsets: []tool.Toolset{
			toolset,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create agent: %w", err)
	}

	sessionSvc := session.InMemoryService()
	appName := "deep-research"
	userID := "user"
	sessionID := uuid.NewString()

	if _, err := sessionSvc.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	run, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          qaAgent,
		SessionService: sessionSvc,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create runner: %w", err)
	}

	userContent := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			{Text: question},
		},
	}

	s.logger.Info("answering follow-up question", "run_id", runID)

	var answer strings.Builder
	for event, err := range run.Run(ctx, userID, sessionID, userContent, adkagent.RunConfig{
		StreamingMode: adkagent.StreamingModeSSE,
	}) {
		if err != nil {
			return "", fmt.Errorf("agent run failed: %w", err)
		}
		if event.LLMResponse.Content == nil {
			continue
		}
		for _, part := range event.LLMResponse.Content.Parts {
			if part.Text != "" {
				answer.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				s.logger.Debug("qa tool call", "tool", part.FunctionCall.Name)
			}
		}
	}

	if answer.Len() == 0 {
		return "", fmt.Errorf("agent produced no answer")
	}
	return answer.String(), nil
}
