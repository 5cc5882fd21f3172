package allocation

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/plcoste/syndic/internal/domain"
)

// DefaultGeminiModel is the model used for attribution suggestions.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiAttributor asks a Gemini model to map a deposit's counterparty
// string to one of the building's owners. It is an opt-in alternative to
// NameAttributor for ledgers whose bank labels are too mangled for
// substring matching. Responses are constrained to the known owner IDs;
// anything else is treated as no match, so the model can suggest but
// never invent an owner.
type GeminiAttributor struct {
	model string
}

// NewGeminiAttributor creates the attributor. An empty model selects
// DefaultGeminiModel. Credentials come from the environment, same as the
// rest of the Google Cloud clients.
func NewGeminiAttributor(model string) *GeminiAttributor {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiAttributor{model: model}
}

// Attribute implements DepositAttributor.
func (g *GeminiAttributor) Attribute(ctx context.Context, tx *domain.Transaction, owners []*domain.Owner) (string, bool, error) {
	// An explicit owner reference never goes through the model.
	if tx.OwnerID != "" {
		for _, o := range owners {
			if o.ID == tx.OwnerID {
				return o.ID, true, nil
			}
		}
		return "", false, nil
	}
	if len(owners) == 0 {
		return "", false, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", false, fmt.Errorf("GeminiAttributor: create genai client: %w", err)
	}

	var roster strings.Builder
	for _, o := range owners {
		fmt.Fprintf(&roster, "- %s: %s\n", o.ID, o.FullName())
	}

	prompt :=
		"You match bank deposit labels to condominium owners.\n\n" +
			"Known owners (id: full name):\n" + roster.String() + "\n" +
			"Deposit counterparty: " + quote(tx.Counterparty) + "\n" +
			"Deposit description: " + quote(tx.Description) + "\n\n" +
			"Reply with EXACTLY one owner id from the list if the deposit was\n" +
			"paid by that owner, or the single word NONE if you are not sure.\n" +
			"No explanation, no punctuation, just the id or NONE.\n"

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", false, fmt.Errorf("GeminiAttributor: generate content: %w", err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" || strings.EqualFold(answer, "NONE") {
		return "", false, nil
	}
	for _, o := range owners {
		if o.ID == answer {
			return o.ID, true, nil
		}
	}
	return "", false, nil
}

// quote quotes free text for the prompt so empty values stay visible.
func quote(s string) string {
	return fmt.Sprintf("%q", s)
}

var _ DepositAttributor = (*GeminiAttributor)(nil)
