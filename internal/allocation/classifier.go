package allocation

import "strings"

// FeeRule reclassifies a charge as a fee when its keyword appears in the
// transaction description. Keywords are matched on the lower-cased,
// accent-stripped description, so rules should be written without accents.
type FeeRule struct {
	Keyword string
}

// FeeClassifier splits charges into plain charges and fees using an
// ordered rule list. The rule list is injectable so the brittle keyword
// heuristic can be replaced without touching the allocator.
type FeeClassifier struct {
	rules []FeeRule
}

// NewFeeClassifier creates a classifier with the given rules.
func NewFeeClassifier(rules []FeeRule) *FeeClassifier {
	return &FeeClassifier{rules: rules}
}

// DefaultFeeClassifier returns the classifier with the historical
// keyword set used by the syndic ledgers.
func DefaultFeeClassifier() *FeeClassifier {
	return NewFeeClassifier([]FeeRule{
		{Keyword: "frais"},
		{Keyword: "non-execute"},
		{Keyword: "non execute"},
		{Keyword: "participation aux frais"},
	})
}

// IsFee reports whether a charge description matches any fee rule.
func (c *FeeClassifier) IsFee(description string) bool {
	normalized := normalize(description)
	for _, rule := range c.rules {
		if rule.Keyword != "" && strings.Contains(normalized, rule.Keyword) {
			return true
		}
	}
	return false
}

// accentReplacer folds the accented characters that show up in French
// bank statement descriptions.
var accentReplacer = strings.NewReplacer(
	"à", "a", "â", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"î", "i", "ï", "i",
	"ô", "o", "ö", "o",
	"ù", "u", "û", "u", "ü", "u",
	"ç", "c",
)

func normalize(s string) string {
	return accentReplacer.Replace(strings.ToLower(s))
}
