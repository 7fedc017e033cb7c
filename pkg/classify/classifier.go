// pkg/classify/classifier.go
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/kpolley/PIIDetective/pkg/config"
)

// ErrNoClassifications indicates the model returned no parseable payload.
// The caller should treat the table as yielding zero findings and move on.
var ErrNoClassifications = errors.New("no column classifications found in response")

const systemPrompt = `Identify any potential Personal Identifiable Information (PII) in the following table schema.
Try to discover any columns that may contain PII and classify them accordingly, even if they are not explicitly labeled as PII.
Do not classify columns that are not likely related to an individual, such as names or addresses for businesses or public entities.`

// Classifier issues structured-output classification calls against the
// Gemini API. A token bucket caps the request rate so the provider's
// per-minute invocation ceiling is enforced before a request leaves the
// process.
type Classifier struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClassifier creates a classifier from the application configuration
func NewClassifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Classifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.GeminiAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	interval := time.Minute / time.Duration(cfg.ClassifyRequestsPerMinute)

	return &Classifier{
		client:  client,
		model:   cfg.ClassifyModel,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger.Named("classifier"),
	}, nil
}

// responseSchema constrains the model to the classification result shape
func responseSchema() *genai.Schema {
	classifications := make([]string, len(Classifications))
	for i, c := range Classifications {
		classifications[i] = string(c)
	}
	confidences := make([]string, len(ConfidenceScores))
	for i, s := range ConfidenceScores {
		confidences[i] = string(s)
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"columns": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"columnName":      {Type: genai.TypeString},
						"tableName":       {Type: genai.TypeString},
						"datasetId":       {Type: genai.TypeString},
						"classification":  {Type: genai.TypeString, Enum: classifications},
						"confidenceScore": {Type: genai.TypeString, Enum: confidences},
					},
					Required: []string{"columnName", "tableName", "datasetId", "classification", "confidenceScore"},
				},
			},
		},
		Required: []string{"columns"},
	}
}

// Classify sends one formatted schema document to the model and parses the
// strictly-typed response. An empty findings slice is a valid result (the
// table has no PII). A response that fails schema validation yields
// ErrNoClassifications, never a crash.
func (c *Classifier) Classify(ctx context.Context, document string) ([]Finding, error) {
	// Admission control: block until the token bucket permits the call
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	start := time.Now()

	contents := []*genai.Content{
		genai.NewContentFromText(document, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}

	payload := resp.Text()
	if payload == "" {
		return nil, ErrNoClassifications
	}

	var parsed struct {
		Columns []Finding `json:"columns"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		c.logger.Warn("Classification response failed schema validation",
			zap.Error(err),
			zap.Int("payloadLength", len(payload)))
		return nil, ErrNoClassifications
	}

	findings := make([]Finding, 0, len(parsed.Columns))
	for _, finding := range parsed.Columns {
		if !finding.Classification.Valid() || !finding.ConfidenceScore.Valid() {
			c.logger.Warn("Dropping finding with unknown enum value",
				zap.String("column", finding.ColumnName),
				zap.String("classification", string(finding.Classification)),
				zap.String("confidenceScore", string(finding.ConfidenceScore)))
			continue
		}
		findings = append(findings, finding)
	}

	c.logger.Debug("Classification completed",
		zap.Int("findings", len(findings)),
		zap.Duration("duration", time.Since(start)))

	return findings, nil
}

// Close closes the underlying model client. The genai client holds no
// resources that require explicit release, so this is a no-op.
func (c *Classifier) Close() error {
	return nil
}
