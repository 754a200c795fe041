package config

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v2"
)

// PipelineConfig is the full configuration surface for the ingestion,
// enrichment, consolidation and search pipeline.
type PipelineConfig struct {
	ChatQPS                 float64 `yaml:"chat_qps"`
	EmbedQPS                float64 `yaml:"embed_qps"`
	WorkerPoolSize          int     `yaml:"worker_pool_size"`
	QueueURL                string  `yaml:"queue_url"`
	QueueVisibilitySec      int32   `yaml:"queue_visibility_sec"`
	ThrottleDelaySec        int     `yaml:"throttle_delay_sec"`
	ModelID                 string  `yaml:"model_id"`
	EmbeddingModelID        string  `yaml:"embedding_model_id"`
	BedrockMaxTokens        int     `yaml:"bedrock_max_tokens"`
	LengthThreshold         int     `yaml:"length_threshold"`
	SentencesPerChunk       int     `yaml:"sentences_per_chunk"`
	SentenceOverlap         int     `yaml:"sentence_overlap"`
	DefaultS3Bucket         string  `yaml:"default_s3_bucket"`
	DefaultJSONFilePath     string  `yaml:"default_json_file_path"`
	DeduplicateConsolidated bool    `yaml:"deduplicate_consolidated"`
}

// LoadPipelineConfig reads the pipeline's YAML configuration file and
// applies the same awkward-as-zero-value defaulting pattern used for the
// rest of this service's configuration.
func LoadPipelineConfig(filename string) (*PipelineConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		pterm.Error.Printf("Error reading pipeline config file: %v\n", err)
		return nil, fmt.Errorf("error reading pipeline config file: %w", err)
	}

	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		pterm.Error.Printf("Error unmarshaling pipeline config: %v\n", err)
		return nil, fmt.Errorf("error unmarshaling pipeline config: %w", err)
	}

	applyPipelineDefaults(&cfg)

	pterm.Success.Println("Pipeline configuration loaded successfully.")
	return &cfg, nil
}

func applyPipelineDefaults(cfg *PipelineConfig) {
	if cfg.ChatQPS <= 0 {
		cfg.ChatQPS = 2
		pterm.Info.Println("No chat_qps specified, using default (2).")
	}
	if cfg.EmbedQPS <= 0 {
		cfg.EmbedQPS = 5
		pterm.Info.Println("No embed_qps specified, using default (5).")
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
		pterm.Info.Println("No worker_pool_size specified, using default (4).")
	}
	if cfg.QueueVisibilitySec <= 0 {
		cfg.QueueVisibilitySec = 300
		pterm.Info.Println("No queue_visibility_sec specified, using default (300).")
	}
	if cfg.ThrottleDelaySec <= 0 {
		cfg.ThrottleDelaySec = 30
		pterm.Info.Println("No throttle_delay_sec specified, using default (30).")
	}
	if cfg.BedrockMaxTokens <= 0 {
		cfg.BedrockMaxTokens = 4096
		pterm.Info.Println("No bedrock_max_tokens specified, using default (4096).")
	}
	if cfg.LengthThreshold <= 0 {
		cfg.LengthThreshold = 500
		pterm.Info.Println("No length_threshold specified, using default (500).")
	}
	if cfg.SentencesPerChunk <= 0 {
		cfg.SentencesPerChunk = 2
		pterm.Info.Println("No sentences_per_chunk specified, using default (2).")
	}
	if cfg.SentenceOverlap <= 0 {
		cfg.SentenceOverlap = 1
		pterm.Info.Println("No sentence_overlap specified, using default (1).")
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "anthropic.claude-3-sonnet"
	}
	if cfg.EmbeddingModelID == "" {
		cfg.EmbeddingModelID = "amazon.titan-embed-text-v2"
	}
}
