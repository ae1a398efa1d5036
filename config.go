package legalrag

// Config holds all configuration for the legal research engine.
type Config struct {
	// CasesDir is the root directory under which every case's files,
	// provenance index, and uploaded documents live. Created on startup.
	CasesDir string `json:"cases_dir" yaml:"cases_dir"`

	// LegalCacheDir is the root of the content-addressed legal source
	// snapshot cache, shared across all cases. Created on startup.
	LegalCacheDir string `json:"legal_cache_dir" yaml:"legal_cache_dir"`

	// VectorStoreDir holds each case's per-case SQLite vector-index
	// database, named from a sanitized form of the case id.
	VectorStoreDir string `json:"vector_store_dir" yaml:"vector_store_dir"`

	// LLM providers.
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`
	Chat      LLMConfig `json:"chat" yaml:"chat"`

	// EmbeddingDim must match the embedding model's output dimension.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// WhitelistDomains is the ordered list of legal source domains the
	// fetcher and validator accept. An entry matches a host if the host
	// equals the entry or ends with "." + entry.
	WhitelistDomains []string `json:"whitelist_domains" yaml:"whitelist_domains"`

	// OCRTextThreshold is the average extracted-characters-per-page below
	// which a PDF is re-extracted through OCR.
	OCRTextThreshold int `json:"ocr_text_threshold" yaml:"ocr_text_threshold"`

	// ChunkTargetWords and ChunkOverlapWords control the chunker's
	// sliding window.
	ChunkTargetWords  int `json:"chunk_target_words" yaml:"chunk_target_words"`
	ChunkOverlapWords int `json:"chunk_overlap_words" yaml:"chunk_overlap_words"`

	// Retrieval tuning.
	HybridSearchTopK          int     `json:"hybrid_search_top_k" yaml:"hybrid_search_top_k"`
	MaxChunksPerDoc           int     `json:"max_chunks_per_doc" yaml:"max_chunks_per_doc"`
	DedupeSimilarityThreshold float64 `json:"dedupe_similarity_threshold" yaml:"dedupe_similarity_threshold"`
	WeightLexical             float64 `json:"weight_lexical" yaml:"weight_lexical"`
	WeightVector              float64 `json:"weight_vector" yaml:"weight_vector"`

	// MaxCitationRetries bounds the answer engine's retry loop (attempts =
	// MaxCitationRetries + 1).
	MaxCitationRetries int `json:"max_citation_retries" yaml:"max_citation_retries"`

	// MaxLegalSnapshots caps how many legal sources Phase A fetches per
	// question.
	MaxLegalSnapshots int `json:"max_legal_snapshots" yaml:"max_legal_snapshots"`

	// Temperature is the chat completion temperature used by the answer
	// engine.
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openrouter, openai, groq, xai, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with sensible default values, suitable
// for local inference against an Ollama server.
func DefaultConfig() Config {
	return Config{
		CasesDir:       "./cases",
		LegalCacheDir:  "./legal_cache",
		VectorStoreDir: "./cases/.vectors",
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		EmbeddingDim:              768,
		WhitelistDomains:          []string{"acas.org.uk", "gov.uk", "citizensadvice.org.uk"},
		OCRTextThreshold:          100,
		ChunkTargetWords:          500,
		ChunkOverlapWords:         80,
		HybridSearchTopK:          8,
		MaxChunksPerDoc:           3,
		DedupeSimilarityThreshold: 0.9,
		WeightLexical:             0.5,
		WeightVector:              0.5,
		MaxCitationRetries:        2,
		MaxLegalSnapshots:         3,
		Temperature:               0.3,
	}
}
