package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/logging"
	"github.com/Divas-Gupta30/ragflow/internal/metrics"
	"github.com/Divas-Gupta30/ragflow/internal/processing"
)

const (
	defaultGeminiEndpoint   = "https://generativelanguage.googleapis.com/v1beta"
	generativeLanguageScope = "https://www.googleapis.com/auth/generative-language"
)

var errBadResponse = errors.New("malformed response")

// GeminiOptions configures NewGemini.
type GeminiOptions struct {
	APIKey     string
	Endpoint   string
	Timeout    time.Duration
	MaxRetries int
	// Dimension is the requested embedding size; zero means
	// processing.EmbeddingDim.
	Dimension  int
	HTTPClient *http.Client
}

// Gemini implements Model and processing.Embedder on the Generative
// Language REST API.
type Gemini struct {
	http       *http.Client
	endpoint   string
	timeout    time.Duration
	maxRetries int
	dimension  int
	backoff    time.Duration
	log        *logging.Logger
}

// NewGemini authenticates with the API key when one is set, and with
// Application Default Credentials otherwise. A caller-supplied HTTPClient
// carries its own auth.
func NewGemini(ctx context.Context, opts GeminiOptions, log *logging.Logger) (*Gemini, error) {
	hc := opts.HTTPClient
	if hc == nil {
		var clientOpts []option.ClientOption
		if opts.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
		} else {
			ts, err := google.DefaultTokenSource(ctx, generativeLanguageScope)
			if err != nil {
				return nil, fmt.Errorf("gemini credentials: no API key and no default credentials: %w", err)
			}
			clientOpts = append(clientOpts, option.WithTokenSource(ts))
		}
		var err error
		hc, _, err = htransport.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("gemini transport: %w", err)
		}
	}

	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	dim := opts.Dimension
	if dim <= 0 {
		dim = processing.EmbeddingDim
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Gemini{
		http:       hc,
		endpoint:   endpoint,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		dimension:  dim,
		backoff:    500 * time.Millisecond,
		log:        log,
	}, nil
}

// modelName accepts both "gemini-2.5-flash" and "models/gemini-2.5-flash".
func modelName(model string) string {
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "tunedModels/") {
		return model
	}
	return "models/" + model
}

type part struct {
	Text         string        `json:"text,omitempty"`
	Thought      bool          `json:"thought,omitempty"`
	FunctionCall *functionCall `json:"functionCall,omitempty"`
}

type functionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      *content `json:"content"`
		FinishReason string   `json:"finishReason"`
	} `json:"candidates"`
}

type embedRequest struct {
	Model                string  `json:"model,omitempty"`
	Content              content `json:"content"`
	TaskType             string  `json:"taskType"`
	OutputDimensionality int     `json:"outputDimensionality,omitempty"`
}

type embedding struct {
	Values []float32 `json:"values"`
}

type batchEmbedRequest struct {
	Requests []embedRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []embedding `json:"embeddings"`
}

type embedResponse struct {
	Embedding *embedding `json:"embedding"`
}

func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	body := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{Temperature: req.Temperature},
	}
	if req.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}

	var resp generateResponse
	if err := g.post(ctx, "generate", modelName(req.Model)+":generateContent", body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrGeneration, req.Model, err)
	}
	return &Response{Model: req.Model, Content: responseContent(&resp)}, nil
}

// responseContent maps the first candidate's parts onto typed blocks.
// Thought parts are dropped.
func responseContent(resp *generateResponse) Content {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Blocks()
	}
	var blocks []Block
	for _, p := range resp.Candidates[0].Content.Parts {
		switch {
		case p.Thought:
		case p.FunctionCall != nil:
			blocks = append(blocks, Block{Type: "function_call", Text: p.FunctionCall.Name})
		case p.Text != "":
			blocks = append(blocks, Block{Type: BlockText, Text: p.Text})
		}
	}
	return Blocks(blocks...)
}

func (g *Gemini) EmbedDocuments(ctx context.Context, model string, texts []string) ([][]float32, error) {
	name := modelName(model)
	body := batchEmbedRequest{Requests: make([]embedRequest, len(texts))}
	for i, t := range texts {
		body.Requests[i] = g.embedRequest(name, t, "RETRIEVAL_DOCUMENT")
	}
	var resp batchEmbedResponse
	if err := g.post(ctx, "embed", name+":batchEmbedContents", body, &resp); err != nil {
		return nil, fmt.Errorf("embed documents with %s: %w", model, err)
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

func (g *Gemini) EmbedQuery(ctx context.Context, model, text string) ([]float32, error) {
	name := modelName(model)
	var resp embedResponse
	if err := g.post(ctx, "embed", name+":embedContent", g.embedRequest(name, text, "RETRIEVAL_QUERY"), &resp); err != nil {
		return nil, fmt.Errorf("embed query with %s: %w", model, err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("embed query with %s: empty embedding", model)
	}
	return resp.Embedding.Values, nil
}

func (g *Gemini) embedRequest(model, text, task string) embedRequest {
	return embedRequest{
		Model:                model,
		Content:              content{Parts: []part{{Text: text}}},
		TaskType:             task,
		OutputDimensionality: g.dimension,
	}
}

// post sends one JSON request to endpoint/path, retrying transient failures,
// and decodes a 2xx body into out.
func (g *Gemini) post(ctx context.Context, op, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	url := g.endpoint + "/" + path
	return g.withRetry(ctx, op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := g.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := googleapi.CheckResponse(resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %v", errBadResponse, err)
		}
		return nil
	})
}

// withRetry retries 429, 5xx and transport failures with linear backoff.
func (g *Gemini) withRetry(ctx context.Context, op string, call func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = g.attempt(ctx, call)
		if err == nil {
			metrics.LLMCallsTotal.WithLabelValues(op, "ok").Inc()
			return nil
		}
		if attempt >= g.maxRetries || !retryable(err) || ctx.Err() != nil {
			break
		}
		wait := g.backoff * time.Duration(attempt+1)
		g.log.Warn("gemini call failed, retrying", "op", op, "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			metrics.LLMCallsTotal.WithLabelValues(op, "error").Inc()
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	metrics.LLMCallsTotal.WithLabelValues(op, "error").Inc()
	return err
}

func (g *Gemini) attempt(ctx context.Context, call func(context.Context) error) error {
	if g.timeout <= 0 {
		return call(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return call(ctx)
}

func retryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	if errors.Is(err, errBadResponse) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

var (
	_ Model               = (*Gemini)(nil)
	_ processing.Embedder = (*Gemini)(nil)
)
