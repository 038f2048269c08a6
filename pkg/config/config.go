package config

import (
	"os"
	"strconv"
	"time"

	"github.com/mikeboe/deep-research/pkg/agent"
)

type Config struct {
	GoogleApiKey string
	TavilyApiKey string
	DatabaseURL  string
	Port         string

	ReasoningModel string
	FastModel      string
	EmbeddingModel string

	MaxRounds             int
	MaxSubqueriesPerRound int
	MaxSearchResults      int
	MaxSourcesPerRun      int
	PerURLTimeoutSeconds  int
	CostCeilingUSD        float64
	TimeCeilingSeconds    int
	ContextTopK           int
	MaxSummaryWords       int

	SmartInputCostPer1K  float64
	SmartOutputCostPer1K float64
	CheapInputCostPer1K  float64
	CheapOutputCostPer1K float64

	SearchDepth string

	ChunkSize      int
	ChunkOverlap   int
	CollectionName string
}

func Load() *Config {
	return &Config{
		GoogleApiKey: getEnv("GOOGLE_API_KEY", ""),
		TavilyApiKey: getEnv("TAVILY_API_KEY", ""),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		Port:         getEnv("PORT", "3000"),

		ReasoningModel: getEnv("REASONING_MODEL", "gemini-3-pro-preview"),
		FastModel:      getEnv("FAST_MODEL", "gemini-3-flash-preview"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),

		MaxRounds:             getEnvAsInt("MAX_ROUNDS", 3),
		MaxSubqueriesPerRound: getEnvAsInt("MAX_SUBQUERIES_PER_ROUND", 4),
		MaxSearchResults:      getEnvAsInt("MAX_SEARCH_RESULTS", 5),
		MaxSourcesPerRun:      getEnvAsInt("MAX_SOURCES_PER_RUN", 50),
		PerURLTimeoutSeconds:  getEnvAsInt("PER_URL_TIMEOUT_SECONDS", 10),
		CostCeilingUSD:        getEnvAsFloat("COST_CEILING_USD", 2.0),
		TimeCeilingSeconds:    getEnvAsInt("TIME_CEILING_SECONDS", 300),
		ContextTopK:           getEnvAsInt("CONTEXT_TOP_K", 20),
		MaxSummaryWords:       getEnvAsInt("MAX_SUMMARY_WORDS", 200),

		SmartInputCostPer1K:  getEnvAsFloat("SMART_INPUT_COST_PER_1K", 0.005),
		SmartOutputCostPer1K: getEnvAsFloat("SMART_OUTPUT_COST_PER_1K", 0.015),
		CheapInputCostPer1K:  getEnvAsFloat("CHEAP_INPUT_COST_PER_1K", 0.00015),
		CheapOutputCostPer1K: getEnvAsFloat("CHEAP_OUTPUT_COST_PER_1K", 0.0006),

		SearchDepth: getEnv("SEARCH_DEPTH", "basic"),

		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
		CollectionName: getEnv("COLLECTION_NAME", "research_archive"),
	}
}

// AgentConfig converts the env-level knobs into the engine's config.
func (c *Config) AgentConfig() agent.Config {
	return agent.Config{
		MaxRounds:             c.MaxRounds,
		MaxSubqueriesPerRound: c.MaxSubqueriesPerRound,
		MaxSearchResults:      c.MaxSearchResults,
		MaxSourcesPerRun:      c.MaxSourcesPerRun,
		PerURLTimeout:         time.Duration(c.PerURLTimeoutSeconds) * time.Second,
		CostCeilingUSD:        c.CostCeilingUSD,
		TimeCeiling:           time.Duration(c.TimeCeilingSeconds) * time.Second,
		ContextTopK:           c.ContextTopK,
		MaxSummaryWords:       c.MaxSummaryWords,
		SmartInputCostPer1K:   c.SmartInputCostPer1K,
		SmartOutputCostPer1K:  c.SmartOutputCostPer1K,
		CheapInputCostPer1K:   c.CheapInputCostPer1K,
		CheapOutputCostPer1K:  c.CheapOutputCostPer1K,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
