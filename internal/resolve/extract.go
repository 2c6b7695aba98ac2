package resolve

import (
	"context"
	"errors"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
	"github.com/shpitdev/impressum-resolver/internal/llm"
)

const extractSystemPrompt = `Extract the company_name and register_number from the content of the
Impressum (legal notice) page the user sends.
company_name is the registered legal name including its legal form, e.g. 'otinga GmbH'.
register_number is the commercial register entry, e.g. 'HRB 24991' or 'HRB 261637 B'.`

var companySchema = llm.Schema{
	Name:        "company_information",
	Description: "Legal identity of the company operating the website.",
	Properties: []llm.Property{
		{Name: "company_name", Description: "The registered company name, e.g. 'otinga GmbH'."},
		{Name: "register_number", Description: "The register number, e.g. 'HRB 24991' or 'HRB 261637 B'."},
	},
}

// DefaultMaxContentChars bounds the page text sent for extraction.
const DefaultMaxContentChars = 60000

// CompanyInfoExtractor turns Impressum page content into a CompanyRecord.
type CompanyInfoExtractor struct {
	completer llm.Completer
	maxChars  int
	validate  *validator.Validate
}

func NewCompanyInfoExtractor(completer llm.Completer, maxContentChars int) *CompanyInfoExtractor {
	if maxContentChars <= 0 {
		maxContentChars = DefaultMaxContentChars
	}
	return &CompanyInfoExtractor{
		completer: completer,
		maxChars:  maxContentChars,
		validate:  validator.New(),
	}
}

// Extract returns a record with both fields set, or an error. Partial
// records are rejected with a *ValidationError.
func (e *CompanyInfoExtractor) Extract(ctx context.Context, content string) (CompanyRecord, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return CompanyRecord{}, ErrEmptyContent
	}
	if len(content) > e.maxChars {
		content = strings.ToValidUTF8(content[:e.maxChars], "")
	}

	system := extractSystemPrompt
	if info := whatlanggo.Detect(content); info.IsReliable() {
		system += "\nThe page is written in " + info.Lang.String() + "; return values exactly as written on the page."
	}

	text, err := e.completer.Complete(ctx, llm.Request{
		System:   system,
		Messages: []string{content},
		Schema:   companySchema,
	})
	if err != nil {
		return CompanyRecord{}, err
	}
	rec, err := llm.Decode[CompanyRecord](text, companySchema)
	if err != nil {
		return CompanyRecord{}, err
	}
	rec.LegalName = strings.TrimSpace(rec.LegalName)
	rec.RegisterNumber = strings.TrimSpace(rec.RegisterNumber)
	if err := e.validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return CompanyRecord{}, &ValidationError{Fields: fields}
		}
		return CompanyRecord{}, err
	}
	return rec, nil
}
