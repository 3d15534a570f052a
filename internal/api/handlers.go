package api

import (
	"net/http"
	"strings"

	"github.com/QTest-hq/qroute/internal/classifier"
	"github.com/QTest-hq/qroute/internal/dispatch"
	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/QTest-hq/qroute/internal/selector"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// QueryRequest is the request body for classification and model selection
type QueryRequest struct {
	Query           string `json:"query"`
	EstimatedTokens int    `json:"estimated_tokens,omitempty"` // 0 uses the classifier's estimate
}

// SelectResponse pairs a classification with the model chosen for it
type SelectResponse struct {
	Classification classifier.Classification `json:"classification"`
	Selection      selector.Result           `json:"selection"`
}

// GenerateRequest is the request body for text generation
type GenerateRequest struct {
	Prompt           string            `json:"prompt"`
	System           string            `json:"system,omitempty"`
	Query            string            `json:"query,omitempty"` // routing query, defaults to prompt
	Temperature      float64           `json:"temperature,omitempty"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	TopP             float64           `json:"top_p,omitempty"`
	FrequencyPenalty float64           `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64           `json:"presence_penalty,omitempty"`
	Stop             []string          `json:"stop,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// EmbeddingRequest is the request body for embeddings
type EmbeddingRequest struct {
	Text string `json:"text"`
}

// EmbeddingResponse carries one embedding vector
type EmbeddingResponse struct {
	Embedding  []float64 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
}

// ProviderHealthResponse is the aggregate provider health report
type ProviderHealthResponse struct {
	Healthy   bool                                   `json:"healthy"`
	Providers map[llm.Provider]dispatch.HealthStatus `json:"providers"`
}

func (g *GenerateRequest) validate() string {
	switch {
	case strings.TrimSpace(g.Prompt) == "":
		return "prompt is required"
	case g.Temperature < 0 || g.Temperature > 2:
		return "temperature must be between 0 and 2"
	case g.TopP < 0 || g.TopP > 1:
		return "top_p must be between 0 and 1"
	case g.MaxTokens < 0:
		return "max_tokens must not be negative"
	}
	return ""
}

// toRequest builds the dispatch request and routing query, tagging it with the HTTP request id
func (g *GenerateRequest) toRequest(r *http.Request) (*llm.Request, string) {
	metadata := make(map[string]string, len(g.Metadata)+1)
	for k, v := range g.Metadata {
		metadata[k] = v
	}
	if _, ok := metadata["request_id"]; !ok {
		if id := middleware.GetReqID(r.Context()); id != "" {
			metadata["request_id"] = id
		}
	}

	query := g.Query
	if query == "" {
		query = g.Prompt
	}

	return &llm.Request{
		Prompt:           g.Prompt,
		System:           g.System,
		Temperature:      g.Temperature,
		MaxTokens:        g.MaxTokens,
		TopP:             g.TopP,
		FrequencyPenalty: g.FrequencyPenalty,
		PresencePenalty:  g.PresencePenalty,
		Stop:             g.Stop,
		Metadata:         metadata,
	}, query
}

// classify categorizes a query without dispatching it
func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, s.llm.Classify(req.Query))
}

// selectModel classifies a query and reports the model it would be routed to
func (s *Server) selectModel(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EstimatedTokens < 0 {
		respondError(w, http.StatusBadRequest, "estimated_tokens must not be negative")
		return
	}

	c, result := s.llm.SelectModel(req.Query, req.EstimatedTokens)
	respondJSON(w, http.StatusOK, SelectResponse{Classification: c, Selection: result})
}

// generate routes a prompt and returns the full completion
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var body GenerateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := body.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	req, query := body.toRequest(r)
	resp, err := s.llm.GenerateText(r.Context(), req, query)
	if err != nil {
		log.Error().Err(err).Str("request_id", req.Metadata["request_id"]).Msg("generation failed")
		respondError(w, statusForError(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// createEmbedding embeds text with the first provider that supports it
func (s *Server) createEmbedding(w http.ResponseWriter, r *http.Request) {
	var req EmbeddingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	vec, err := s.llm.CreateEmbedding(r.Context(), req.Text)
	if err != nil {
		log.Error().Err(err).Msg("embedding failed")
		respondError(w, statusForError(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, EmbeddingResponse{Embedding: vec, Dimensions: len(vec)})
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.llm.Providers())
}

// providerHealth probes every registered provider; 503 when none is healthy
func (s *Server) providerHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.llm.HealthCheck(r.Context())

	resp := ProviderHealthResponse{Providers: statuses}
	for _, st := range statuses {
		if st.Healthy {
			resp.Healthy = true
			break
		}
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.llm.GetMetrics())
}

// listModels returns the catalog, optionally filtered by ?tier= and ?provider=
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	tier := selector.Tier(r.URL.Query().Get("tier"))
	if tier != "" && !tier.Valid() {
		respondError(w, http.StatusBadRequest, "invalid tier")
		return
	}
	provider := llm.Provider(r.URL.Query().Get("provider"))
	if provider != "" && !provider.Valid() {
		respondError(w, http.StatusBadRequest, "invalid provider")
		return
	}

	models := make([]selector.ModelDescriptor, 0)
	for _, m := range s.llm.Models() {
		if tier != "" && m.Tier != tier {
			continue
		}
		if provider != "" && m.Provider != provider {
			continue
		}
		models = append(models, m)
	}

	respondJSON(w, http.StatusOK, models)
}
