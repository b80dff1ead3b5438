package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/service"
)

const defaultModel = "gpt-4o-mini"

// OpenAI is an advisor backed by the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI-backed advisor.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = defaultModel
	}
	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

const assessSystemPrompt = `You audit corporate expense claims. Given a claim and the
bank charge it matched, report whether anything looks wrong: amount drift,
implausible merchant for the category, weekend charges claimed as business
meals, and similar problems.

Respond with ONLY a JSON object:
{"severity": "none" | "warn" | "severe", "notes": "one sentence, empty when severity is none"}`

type assessPayload struct {
	Severity string `json:"severity"`
	Notes    string `json:"notes"`
}

// Assess reviews one expense/candidate pairing. Returns AdvisoryNone when the
// reviewer found nothing wrong.
func (o *OpenAI) Assess(ctx context.Context, expense model.ExpenseRecord, candidate *model.LedgerCandidate) (model.Assessment, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Claim: payee %q, amount %.2f, date %s, category %q",
		expense.Payee, expense.Amount, expense.ClaimDate.Format("2006-01-02"), expense.Category)
	if candidate != nil {
		fmt.Fprintf(&sb, "\nMatched charge: %q, amount %.2f, date %s",
			candidate.Description, candidate.Amount, candidate.TxnDate.Format("2006-01-02"))
	} else {
		sb.WriteString("\nNo bank charge matched this claim.")
	}

	raw, err := o.complete(ctx, assessSystemPrompt, sb.String())
	if err != nil {
		return model.Assessment{}, err
	}

	var payload assessPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return model.Assessment{}, fmt.Errorf("failed to parse advisory response: %w", err)
	}

	severity := model.AdvisorySeverity(payload.Severity)
	switch severity {
	case model.AdvisoryNone, model.AdvisoryWarn, model.AdvisorySevere:
	default:
		return model.Assessment{}, fmt.Errorf("advisory response has unknown severity %q", payload.Severity)
	}
	return model.Assessment{Severity: severity, Notes: payload.Notes}, nil
}

const orphanSystemPrompt = `You categorize bank charges nobody filed an expense claim for.
Decide whether each charge is a real business expense to process, or noise to
exclude (card payments, refunds, duplicates, interest).

Respond with ONLY a JSON object:
{"action": "process" | "exclude",
 "category": "expense category, empty when excluding",
 "jurisdiction": "two-letter code when determinable, else empty",
 "reason": "one sentence",
 "confidence": 0-100}`

type orphanPayload struct {
	Action       string `json:"action"`
	Category     string `json:"category"`
	Jurisdiction string `json:"jurisdiction"`
	Reason       string `json:"reason"`
	Confidence   int    `json:"confidence"`
}

// ClassifyOrphan categorizes one unmatched charge.
func (o *OpenAI) ClassifyOrphan(ctx context.Context, candidate model.LedgerCandidate) (service.OrphanVerdict, error) {
	user := fmt.Sprintf("Charge: %q, amount %.2f, date %s, source %q",
		candidate.Description, candidate.Amount, candidate.TxnDate.Format("2006-01-02"), candidate.Source)

	raw, err := o.complete(ctx, orphanSystemPrompt, user)
	if err != nil {
		return service.OrphanVerdict{}, err
	}

	var payload orphanPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return service.OrphanVerdict{}, fmt.Errorf("failed to parse orphan classification: %w", err)
	}

	action := service.OrphanAction(payload.Action)
	if action != service.OrphanProcess && action != service.OrphanExclude {
		return service.OrphanVerdict{}, fmt.Errorf("orphan classification has unknown action %q", payload.Action)
	}
	return service.OrphanVerdict{
		Action:       action,
		Category:     payload.Category,
		Jurisdiction: payload.Jurisdiction,
		Reason:       payload.Reason,
		Confidence:   payload.Confidence,
	}, nil
}

func (o *OpenAI) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("advisory completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("advisory completion returned no choices")
	}
	return stripFences(resp.Choices[0].Message.Content), nil
}

// stripFences removes a markdown code fence the model sometimes wraps JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
