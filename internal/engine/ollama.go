package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama is a Backend that reads frames with a local Ollama vision model
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama backend
// Vision models that read ID documents reasonably well:
//   - qwen2.5vl (best OCR of the small models)
//   - llava:latest
//   - llama3.2-vision
func NewOllama(baseURL string, modelName string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		// No client timeout: model pulls stream for minutes. Requests carry their own deadlines.
		client: &http.Client{},
	}
}

// Supported reports whether the Ollama server answers
func (o *Ollama) Supported(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/version", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type ollamaPullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type ollamaPullStatus struct {
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

// Open pulls the model, reporting download progress
func (o *Ollama) Open(ctx context.Context, settings LoadSettings) (FrameReader, error) {
	jsonData, err := json.Marshal(ollamaPullRequest{Model: o.model, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/pull", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	o.setHeaders(req, settings.License)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("ollama rejected credentials (status %d): %w", resp.StatusCode, ErrLicense)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	success := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var status ollamaPullStatus
		if err := json.Unmarshal(line, &status); err != nil {
			return nil, fmt.Errorf("decoding pull status: %w", err)
		}
		if status.Error != "" {
			return nil, fmt.Errorf("pulling model %s: %s", o.model, status.Error)
		}
		if status.Total > 0 {
			settings.report(int(status.Completed * 95 / status.Total))
		}
		if status.Status == "success" {
			success = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading pull status: %w", err)
	}
	if !success {
		return nil, fmt.Errorf("pulling model %s: stream ended without success", o.model)
	}

	return &ollamaReader{backend: o, license: settings.License}, nil
}

func (o *Ollama) setHeaders(req *http.Request, license string) {
	req.Header.Set("Content-Type", "application/json")
	if license != "" {
		req.Header.Set("Authorization", "Bearer "+license)
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaReader struct {
	backend *Ollama
	license string
}

// ReadFrame asks the model for the document fields visible in frame
func (r *ollamaReader) ReadFrame(ctx context.Context, frame Frame) (*FrameData, error) {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	pngData, _, err := prepareFrame(frame)
	if err != nil {
		return nil, err
	}

	reqBody := ollamaChatRequest{
		Model:  r.backend.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading identity documents. You must carefully read all text in images and extract accurate information.",
			},
			{
				Role:    "user",
				Content: idScanPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.backend.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	r.backend.setHeaders(req, r.license)

	resp, err := r.backend.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	data, err := parseFrameJSON(chatResp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing document data: %w", err)
	}
	return data, nil
}

// Close is a no-op for the HTTP client
func (r *ollamaReader) Close() error {
	return nil
}
