package imagery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const generationTimeout = 10 * time.Minute

// ErrContentPolicy marks a generation request the provider rejected outright.
// Retrying the same prompt will be rejected again.
var ErrContentPolicy = errors.New("image generation rejected by content policy")

// Client generates avatar images. Text-to-image goes through the OpenAI SDK;
// image-to-image goes through a direct multipart request because the edits
// endpoint takes reference images as repeated image[] form fields, which the
// SDK does not express.
type Client struct {
	openai  openai.Client
	http    *resty.Client
	apiBase string
	model   string
}

type Config struct {
	APIKey  string
	APIBase string
	Model   string
}

func NewClient(cfg Config) *Client {
	apiBase := strings.TrimSuffix(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}

	return &Client{
		openai:  openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		http:    resty.New().SetAuthToken(cfg.APIKey),
		apiBase: apiBase,
		model:   cfg.Model,
	}
}

// GenerateBase produces the persona's base image from a prompt. When a
// reference face is supplied the edits endpoint is used so the model can
// borrow facial features from it; otherwise plain text-to-image.
func (c *Client) GenerateBase(ctx context.Context, prompt string, referenceFace []byte) ([]byte, error) {
	if len(referenceFace) > 0 {
		return c.edit(ctx, prompt, [][]byte{referenceFace})
	}

	callCtx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	res, err := c.openai.Images.Generate(callCtx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(c.model),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize("auto"),
	})
	if err != nil {
		if isContentPolicyError(err.Error()) {
			return nil, fmt.Errorf("%w: %s", ErrContentPolicy, err.Error())
		}
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	if len(res.Data) == 0 || res.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image generation response missing image data")
	}

	image, err := base64.StdEncoding.DecodeString(res.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("error decoding generated image: %w", err)
	}

	slog.Info("generated base image", "bytes", len(image))
	return image, nil
}

// GenerateGrid renders the derived-image grid from the base image and the
// synthesized prompt.
func (c *Client) GenerateGrid(ctx context.Context, baseImage []byte, prompt string) ([]byte, error) {
	return c.edit(ctx, prompt, [][]byte{baseImage})
}

func (c *Client) edit(ctx context.Context, prompt string, images [][]byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	req := c.http.R().
		SetContext(callCtx).
		SetFormData(map[string]string{
			"prompt": prompt,
			"model":  c.model,
			"n":      "1",
			"size":   "auto",
		})

	for i, image := range images {
		req.SetMultipartField("image[]", fmt.Sprintf("image_%d.png", i), "image/png", bytes.NewReader(image))
	}

	res, err := req.Post(c.apiBase + "/images/edits")
	if err != nil {
		return nil, fmt.Errorf("image edit request failed: %w", err)
	}

	if !res.IsSuccess() {
		body := res.String()
		slog.Error("image edit returned error", "status_code", res.StatusCode(), "body", body)
		if isContentPolicyError(body) {
			return nil, fmt.Errorf("%w: status %d", ErrContentPolicy, res.StatusCode())
		}
		return nil, fmt.Errorf("image edit returned status %d", res.StatusCode())
	}

	var parsed struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("error parsing image edit response: %w", err)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image edit response missing image data")
	}

	image, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("error decoding edited image: %w", err)
	}

	slog.Info("generated image from references", "bytes", len(image))
	return image, nil
}

func isContentPolicyError(body string) bool {
	return strings.Contains(strings.ToLower(body), "content_policy_violation")
}
