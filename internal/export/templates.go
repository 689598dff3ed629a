package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("export").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
	"inc":   func(i int) int { return i + 1 },
}).ParseFS(templateFS, "templates/*.html"))

// TemplateData is shared by the MOM and JIK templates. Detail rows are
// pre-formatted so the templates stay free of type switches.
type TemplateData struct {
	Kind        string
	Title       string
	CompanyName string
	Details     []Detail
	Sections    []TemplateSection
	Approvers   []TemplateApprover
	NextActions []TemplateNextAction
	Attachments []TemplateAttachment
	GeneratedAt time.Time
}

type Detail struct {
	Label string
	Value string
}

// TemplateSection is one content section, already rendered to HTML.
type TemplateSection struct {
	Title string
	HTML  template.HTML
}

type TemplateApprover struct {
	Name  string
	Type  string
	Email string
}

type TemplateNextAction struct {
	Action string
	Target string
	PIC    string
}

type TemplateAttachment struct {
	SectionName string
	Files       []TemplateFile
}

type TemplateFile struct {
	Name string
	URL  string
}

func renderHTML(name string, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// formatRupiah renders an amount the way Indonesian documents print it:
// dot thousands separators and a comma before the cents.
func formatRupiah(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%sRp %s,%s", sign, grouped.String(), cents)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2 January 2006")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
