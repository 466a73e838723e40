package extractor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dativo-io/masquerade/internal/entity"
)

// categoryTypes maps response categories onto entity types. Categories not
// listed here are ignored.
var categoryTypes = map[string]entity.Type{
	"personal_names":          entity.PersonName,
	"emails":                  entity.Email,
	"phone_numbers":           entity.Phone,
	"addresses":               entity.Address,
	"social_security_numbers": entity.SSN,
	"credit_card_numbers":     entity.CreditCard,
	"account_numbers":         entity.AccountNumber,
	"contract_numbers":        entity.Type("contract_number"),
	"company_names":           entity.CompanyName,
	"dates_of_birth":          entity.DateOfBirth,
	"api_keys":                entity.APIKey,
	"access_tokens":           entity.APIKey,
	"passwords":               entity.Password,
	"config_secrets":          entity.Password,
	"database_credentials":    entity.DatabaseURL,
	"private_keys":            entity.PrivateKey,
	"ip_addresses":            entity.IPAddress,
	"company_secrets":         entity.Custom,
}

var promptCategories = map[Kind][]string{
	KindText: {
		"personal_names", "emails", "phone_numbers", "addresses", "social_security_numbers",
		"credit_card_numbers", "account_numbers", "contract_numbers", "company_names",
		"dates_of_birth", "api_keys", "passwords",
	},
	KindPDF: {
		"personal_names", "emails", "phone_numbers", "addresses", "social_security_numbers",
		"credit_card_numbers", "account_numbers", "contract_numbers", "company_names",
		"dates_of_birth",
	},
	KindCode: {
		"api_keys", "access_tokens", "passwords", "database_credentials", "private_keys",
		"config_secrets", "personal_names", "emails", "ip_addresses", "company_secrets",
	},
}

const systemPrompt = `You are a data-protection assistant that finds sensitive information.
Respond with a single JSON object and nothing else.
Copy every value exactly as it appears in the input, character for character.
Each array element is either the value as a string or an object {"value": "...", "confidence": 0.0-1.0}.
Leave a category as an empty array when nothing is found. Do not invent values.`

var kindIntro = map[Kind]string{
	KindText: "Extract sensitive information from this text.",
	KindPDF:  "Extract sensitive information from this document text.",
	KindCode: "Analyze this source code and extract secrets and personal information embedded in it.",
}

// Categories returns the response categories requested for kind.
func Categories(kind Kind) []string {
	if c, ok := promptCategories[kind]; ok {
		return c
	}
	return promptCategories[KindText]
}

// BuildPrompt renders the user prompt for content of the given kind.
func BuildPrompt(content string, hint Hint) string {
	kind := hint.Kind
	if _, ok := kindIntro[kind]; !ok {
		kind = KindText
	}
	cats := Categories(kind)

	var b strings.Builder
	b.WriteString(kindIntro[kind])
	if kind == KindCode && hint.Language != "" {
		fmt.Fprintf(&b, " The language is %s.", hint.Language)
	}
	b.WriteString("\nReturn JSON with exactly these keys:\n{\n")
	for i, c := range cats {
		fmt.Fprintf(&b, "  %q: []", c)
		if i < len(cats)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n\nInput:\n")
	b.WriteString(content)
	return b.String()
}

// SupportedCategories lists every category the parser understands, sorted.
func SupportedCategories() []string {
	out := make([]string, 0, len(categoryTypes))
	for c := range categoryTypes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
