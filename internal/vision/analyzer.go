// Package vision summarizes profile screenshots with an OpenAI vision model.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/profile-harvester/internal/profile"
)

// Defaults for the chat completions endpoint.
const (
	DefaultBaseURL   = "https://api.openai.com"
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 4096
)

// ErrDecode marks a model reply that is not a profile JSON object.
var ErrDecode = errors.New("vision response is not a profile")

const prompt = `Please analyze these LinkedIn profile screenshots and extract information in the following JSON format:
{
    "url": "LinkedIn profile URL",
    "name": "Full name of the person",
    "important": ["List of key achievements, associations, and important keywords", "e.g. Software Engineer", "Google", "Stanford", "YC"],
    "all_details": "A 200-300 word comprehensive summary of the person's profile, including their main roles, career highlights, education, notable achievements, intentions, interests, etc."
}

Return ONLY the JSON object with no additional text. Make sure the summary is as informative as possible, it does not have to be full proper sentences, focus on words that would be useful to a RAG database. Cover AS MUCH as possible in the word count.`

// Config configures an Analyzer.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Analyzer implements profile.Analyzer with the chat completions API.
type Analyzer struct {
	cfg    Config
	client *http.Client
}

var _ profile.Analyzer = (*Analyzer)(nil)

// New builds an Analyzer. An API key is required.
func New(cfg Config, client *http.Client) (*Analyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("vision api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Analyzer{cfg: cfg, client: client}, nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze implements profile.Analyzer.
func (a *Analyzer) Analyze(ctx context.Context, profileURL string, screenshots [][]byte) (profile.Profile, error) {
	if len(screenshots) == 0 {
		return profile.Profile{}, errors.New("no screenshots to analyze")
	}
	parts := make([]contentPart, 0, len(screenshots)+1)
	parts = append(parts, contentPart{Type: "text", Text: prompt})
	for _, shot := range screenshots {
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(shot),
				Detail: "high",
			},
		})
	}
	body, err := json.Marshal(chatRequest{
		Model:     a.cfg.Model,
		Messages:  []message{{Role: "user", Content: parts}},
		MaxTokens: a.cfg.MaxTokens,
	})
	if err != nil {
		return profile.Profile{}, fmt.Errorf("vision encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return profile.Profile{}, fmt.Errorf("vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("vision call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return profile.Profile{}, fmt.Errorf("vision call: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return profile.Profile{}, fmt.Errorf("vision decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return profile.Profile{}, fmt.Errorf("%w: no choices", ErrDecode)
	}
	return ParseProfile(out.Choices[0].Message.Content, profileURL)
}

// ParseProfile decodes a model reply, tolerating markdown code fences, and
// sets the profile URL to profileURL.
func ParseProfile(reply, profileURL string) (profile.Profile, error) {
	text := StripFences(reply)
	var p profile.Profile
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return profile.Profile{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	p.URL = profileURL
	return p, nil
}

// StripFences removes a surrounding markdown code block.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
