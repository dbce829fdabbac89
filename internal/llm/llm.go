// Package llm handles reasoning-service communication: prompt construction,
// provider dispatch, and parsing of the untrusted responses into plan and
// schema values.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/plotline-ai/plotline/internal/colschema"
	"github.com/plotline-ai/plotline/internal/plan"
)

// Provider is the interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating LLM providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call site.
// Tests must restore the original value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// Options configures a reasoning call.
type Options struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	Debug       bool
}

// RequestPlan asks the reasoning service for an analysis plan over the given
// schema. The raw response is parsed leniently; on a parse failure one repair
// attempt is made with the previous response and error included. A second
// failure returns an empty plan and the error so the caller can degrade to
// synthesized charts instead of failing the request.
func RequestPlan(
	ctx context.Context,
	prompt string,
	s colschema.Schema,
	profiles []colschema.ColumnProfile,
	history []string,
	opts Options,
) (plan.Plan, error) {
	provider, err := NewProvider(opts.Provider, opts.Model)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("llm: create provider: %w", err)
	}

	userPrompt := buildPlanPrompt(prompt, s, profiles, history)
	if opts.Debug {
		// Prompts carry only column names, dtypes, and sample values, never
		// full rows, so dumping them to stderr is safe.
		fmt.Fprintf(os.Stderr, "=== DEBUG: plan prompt ===\n%s\n", userPrompt)
	}

	raw, err := provider.Complete(ctx, planSystemPrompt, userPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("llm: complete: %w", err)
	}
	p, perr := plan.Parse(raw)
	if perr == nil {
		return p, nil
	}

	repairPrompt := buildRepairPrompt(userPrompt, raw, perr)
	raw2, err := provider.Complete(ctx, planSystemPrompt, repairPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("llm: repair complete: %w", err)
	}
	p2, perr2 := plan.Parse(raw2)
	if perr2 != nil {
		return plan.Plan{}, fmt.Errorf("llm: invalid plan after repair attempt: %w", perr2)
	}
	return p2, nil
}

// SchemaHints is the reasoning service's column classification, merged into
// the heuristic schema by the caller. Columns it does not mention keep their
// heuristic category.
type SchemaHints struct {
	Categorical []string `json:"categorical"`
	Numeric     []string `json:"numeric"`
	Datetime    []string `json:"datetime"`
	Identifiers []string `json:"identifiers"`
}

// ClassifyColumns asks the reasoning service to classify ambiguous columns
// from their profiles. Errors are returned for the caller to log and ignore;
// the heuristic classification always stands on its own.
func ClassifyColumns(ctx context.Context, profiles []colschema.ColumnProfile, opts Options) (SchemaHints, error) {
	provider, err := NewProvider(opts.Provider, opts.Model)
	if err != nil {
		return SchemaHints{}, fmt.Errorf("llm: create provider: %w", err)
	}

	raw, err := provider.Complete(ctx, classifySystemPrompt, buildClassifyPrompt(profiles), opts.MaxTokens, opts.Temperature)
	if err != nil {
		return SchemaHints{}, fmt.Errorf("llm: complete: %w", err)
	}
	var hints SchemaHints
	if err := json.Unmarshal([]byte(plan.Sanitize(raw)), &hints); err != nil {
		return SchemaHints{}, fmt.Errorf("llm: parse classification: %w", err)
	}
	return hints, nil
}

const planSystemPrompt = `You are a data analyst planning a dashboard.

Output ONLY valid JSON conforming to the schema below. No prose, no markdown,
no explanation outside the JSON.

Only reference column names that appear in the COLUMN SCHEMA. Never invent
columns. Prefer diverse chart types over repeating the same type.

Output schema (JSON only):
{
  "kpis": [
    {"name": "Average Revenue", "metric": {"column": "revenue", "aggregation": "mean"}}
  ],
  "charts": [
    {
      "id": "chart_1",
      "type": "bar|line|area|pie|scatter|histogram|boxplot|heatmap|radar|gauge|treemap|funnel",
      "x": "column name",
      "y": {"column": "column name", "aggregation": "sum|mean|count|min|max|median|raw"},
      "hue": "optional column name",
      "title": "Chart Title"
    }
  ]
}`

const classifySystemPrompt = `You classify dataset columns for analysis.

Output ONLY valid JSON with this shape, listing column names under every key
that applies (keys may be empty lists):
{"categorical": [], "numeric": [], "datetime": [], "identifiers": []}

An identifier is a column that labels rows (ids, codes, serial numbers) and
must never be aggregated or charted.`

// buildPlanPrompt assembles the user prompt for a plan request.
func buildPlanPrompt(prompt string, s colschema.Schema, profiles []colschema.ColumnProfile, history []string) string {
	var sb strings.Builder

	sb.WriteString("COLUMN SCHEMA:\n")
	fmt.Fprintf(&sb, "  categorical: %s\n", strings.Join(s.Categorical, ", "))
	fmt.Fprintf(&sb, "  numeric: %s\n", strings.Join(s.Numeric, ", "))
	fmt.Fprintf(&sb, "  datetime: %s\n", strings.Join(s.Datetime, ", "))
	if len(s.SuggestedHueColumns) > 0 {
		fmt.Fprintf(&sb, "  suggested hue columns: %s\n", strings.Join(s.SuggestedHueColumns, ", "))
	}

	sb.WriteString("\nCOLUMN PROFILES:\n")
	for _, p := range profiles {
		fmt.Fprintf(&sb, "  %s (%s): %d unique, %d nulls, samples: %s\n",
			p.Name, p.Dtype, p.Unique, p.Nulls, strings.Join(p.Samples, ", "))
	}

	if len(history) > 0 {
		sb.WriteString("\nCONVERSATION SO FAR:\n")
		for _, h := range history {
			fmt.Fprintf(&sb, "  %s\n", h)
		}
	}

	sb.WriteString("\nUSER REQUEST:\n")
	sb.WriteString(prompt)
	sb.WriteString("\n\nProduce the JSON plan now.")
	return sb.String()
}

// buildClassifyPrompt lists every column profile for classification.
func buildClassifyPrompt(profiles []colschema.ColumnProfile) string {
	var sb strings.Builder
	sb.WriteString("COLUMNS:\n")
	for _, p := range profiles {
		fmt.Fprintf(&sb, "  %s (%s): %d unique of %d non-null, samples: %s\n",
			p.Name, p.Dtype, p.Unique, p.Unique+p.Nulls, strings.Join(p.Samples, ", "))
	}
	sb.WriteString("\nProduce the JSON classification now.")
	return sb.String()
}

// buildRepairPrompt constructs the repair message. It includes the original
// user prompt and the previous invalid response so the model has full context.
func buildRepairPrompt(originalUserPrompt, previousResponse string, parseErr error) string {
	var sb strings.Builder
	sb.WriteString(originalUserPrompt)
	sb.WriteString("\n\nYour previous response was:\n")
	sb.WriteString(previousResponse)
	sb.WriteString("\n\nThat response could not be parsed: ")
	sb.WriteString(parseErr.Error())
	sb.WriteString("\nPlease output only the corrected JSON conforming to the schema. Do not repeat the error.")
	return sb.String()
}

// ── Provider dispatch ─────────────────────────────────────────────────────────

// defaultNewProvider dispatches to the appropriate provider implementation.
func defaultNewProvider(providerName, model string) (Provider, error) {
	switch strings.ToLower(providerName) {
	case "anthropic", "":
		return newAnthropicProvider(model)
	case "openai":
		return newOpenAIProvider(model)
	case "google":
		return newGoogleProvider(model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", providerName)
	}
}

// ── Anthropic provider ───────────────────────────────────────────────────────

// anthropicProvider implements Provider using the Anthropic SDK.
// anthropic.Client is a value type; the SDK's NewClient returns it by value.
type anthropicProvider struct {
	client anthropic.Client
	model  string
}

const defaultAnthropicModel = "claude-sonnet-4-20250514"

func newAnthropicProvider(model string) (Provider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: ANTHROPIC_API_KEY environment variable not set")
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicProvider{client: client, model: model}, nil
}

func (p *anthropicProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: messages.new: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		// block.Type is a string field from the Anthropic API; "text" is the
		// only content type that carries assistant text output. The SDK does
		// not expose a typed constant for content block types in this version.
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic: response contained no text content blocks")
	}
	return strings.Join(parts, ""), nil
}
