package flowise

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// Persona batches routinely take minutes; prompt synthesis is a much
	// smaller workflow.
	personaTimeout = 10 * time.Minute
	promptTimeout  = 2 * time.Minute
)

// Client calls the Flowise prediction workflows: one generates persona
// batches, the other synthesizes image prompts from a persona record.
type Client struct {
	http               *resty.Client
	personaWorkflowURL string
	promptWorkflowURL  string
}

type Config struct {
	PersonaWorkflowURL string
	PromptWorkflowURL  string
	AuthToken          string
}

func NewClient(cfg Config) *Client {
	return &Client{
		http:               resty.New().SetAuthToken(cfg.AuthToken),
		personaWorkflowURL: cfg.PersonaWorkflowURL,
		promptWorkflowURL:  cfg.PromptWorkflowURL,
	}
}

// PersonaRequest describes one batch of personas to generate.
type PersonaRequest struct {
	Amount             int
	PersonaDescription string
	BioLanguage        string

	InstructionsFacebook  string
	InstructionsInstagram string
	InstructionsX         string
	InstructionsTiktok    string
}

// PersonData is the persona record sent to the prompt workflow, serialized
// into the workflow's person_data variable.
type PersonData struct {
	Firstname    string `json:"firstname"`
	Lastname     string `json:"lastname"`
	Gender       string `json:"gender"`
	BioFacebook  string `json:"bio_facebook"`
	BioInstagram string `json:"bio_instagram"`
	BioX         string `json:"bio_x"`
	BioTiktok    string `json:"bio_tiktok"`
	Ethnicity    string `json:"ethnicity"`
	Age          *int64 `json:"age"`
}

// Workflow inputs are injected through overrideConfig.startState as key/value
// pairs on the start node.
type startStateEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type predictionRequest struct {
	Question       string `json:"question"`
	OverrideConfig struct {
		StartState struct {
			StartAgentflow []startStateEntry `json:"startAgentflow_0"`
		} `json:"startState"`
	} `json:"overrideConfig"`
}

type predictionResponse struct {
	Text string `json:"text"`
}

func newPredictionRequest(entries []startStateEntry) predictionRequest {
	req := predictionRequest{Question: "go"}
	req.OverrideConfig.StartState.StartAgentflow = entries
	return req
}

// GeneratePersonas runs the persona workflow for one batch and returns the
// raw response text: concatenated JSON objects, one per persona.
func (c *Client) GeneratePersonas(ctx context.Context, req PersonaRequest) (string, error) {
	body := newPredictionRequest([]startStateEntry{
		{Key: "requested_amount", Value: strconv.Itoa(req.Amount)},
		{Key: "persona_description", Value: req.PersonaDescription},
		{Key: "bio_language", Value: req.BioLanguage},
		{Key: "instructions_facebook", Value: req.InstructionsFacebook},
		{Key: "instructions_instagram", Value: req.InstructionsInstagram},
		{Key: "instructions_x", Value: req.InstructionsX},
		{Key: "instructions_tiktok", Value: req.InstructionsTiktok},
	})

	text, err := c.predict(ctx, c.personaWorkflowURL, body, personaTimeout)
	if err != nil {
		return "", fmt.Errorf("persona generation failed: %w", err)
	}
	return text, nil
}

// GenerateImagePrompt asks the prompt workflow for an image generation prompt
// describing the persona. promptsHistory, when non-empty, carries previously
// used prompts so the workflow avoids repeating them.
func (c *Client) GenerateImagePrompt(ctx context.Context, person PersonData, promptsHistory string) (string, error) {
	personJSON, err := json.Marshal(person)
	if err != nil {
		return "", fmt.Errorf("error encoding person data: %w", err)
	}

	entries := []startStateEntry{{Key: "person_data", Value: string(personJSON)}}
	if promptsHistory != "" {
		entries = append(entries, startStateEntry{Key: "prompts_history", Value: promptsHistory})
	}

	text, err := c.predict(ctx, c.promptWorkflowURL, newPredictionRequest(entries), promptTimeout)
	if err != nil {
		return "", fmt.Errorf("image prompt generation failed: %w", err)
	}

	// The text field holds a JSON document whose final_prompt carries the
	// actual prompt.
	var promptData struct {
		FinalPrompt *string `json:"final_prompt"`
	}
	if err := json.Unmarshal([]byte(text), &promptData); err != nil {
		return "", fmt.Errorf("error decoding prompt workflow output: %w", err)
	}
	if promptData.FinalPrompt == nil || *promptData.FinalPrompt == "" {
		return "", fmt.Errorf("prompt workflow output missing final_prompt")
	}

	return *promptData.FinalPrompt, nil
}

func (c *Client) predict(ctx context.Context, url string, body predictionRequest, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := c.http.R().
		SetContext(callCtx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return "", fmt.Errorf("error calling workflow: %w", err)
	}

	if !res.IsSuccess() {
		slog.Error("workflow returned error", "url", url, "status_code", res.StatusCode(), "body", res.String())
		return "", fmt.Errorf("workflow returned status %d", res.StatusCode())
	}

	var prediction predictionResponse
	if err := json.Unmarshal(res.Body(), &prediction); err != nil {
		return "", fmt.Errorf("error parsing workflow response: %w", err)
	}
	if prediction.Text == "" {
		return "", fmt.Errorf("workflow response missing text field")
	}

	return prediction.Text, nil
}
