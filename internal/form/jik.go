package form

import (
	"fmt"
	"strings"

	"dokflow/api/internal/content"
	"dokflow/api/internal/store"

	"github.com/shopspring/decimal"
)

// ApproverTypes lists the JIK approval buckets in display order.
var ApproverTypes = []string{
	store.ApproverInisiator,
	store.ApproverPemeriksa,
	store.ApproverPemberiPersetujuan,
}

// ApproverBuckets groups JIK approvers by type. Each bucket keeps at
// least one entry.
type ApproverBuckets struct {
	Inisiator          []Approver
	Pemeriksa          []Approver
	PemberiPersetujuan []Approver
}

func (b *ApproverBuckets) slot(kind string) (*[]Approver, error) {
	switch kind {
	case store.ApproverInisiator:
		return &b.Inisiator, nil
	case store.ApproverPemeriksa:
		return &b.Pemeriksa, nil
	case store.ApproverPemberiPersetujuan:
		return &b.PemberiPersetujuan, nil
	}
	return nil, fmt.Errorf("approver type %q: %w", kind, ErrUnknownField)
}

// Get returns the bucket for kind.
func (b ApproverBuckets) Get(kind string) []Approver {
	slot, err := b.slot(kind)
	if err != nil {
		return nil
	}
	return *slot
}

// Flatten lists every approver with its Type set, bucket by bucket.
func (b ApproverBuckets) Flatten() []Approver {
	out := []Approver{}
	for _, kind := range ApproverTypes {
		for _, a := range b.Get(kind) {
			t := kind
			a.Type = &t
			out = append(out, a)
		}
	}
	return out
}

type JikValue struct {
	ID                    uint
	Title                 string
	CompanyID             uint
	UnitName              string
	InitiativePartnership string
	InvestValue           decimal.Decimal
	ContractDurationYears int
	Content               []content.Section
	IsFinish              bool
	Approvers             ApproverBuckets
}

// JikPayload is the body of PUT /api/jik/{id}.
type JikPayload struct {
	Title                 string            `json:"title"`
	CompanyID             uint              `json:"company_id"`
	UnitName              string            `json:"unit_name"`
	InitiativePartnership string            `json:"initiative_partnership"`
	InvestValue           decimal.Decimal   `json:"invest_value"`
	ContractDurationYears int               `json:"contract_duration_years"`
	Content               []content.Section `json:"content"`
	IsFinish              bool              `json:"is_finish"`
	Approvers             []Approver        `json:"approvers"`
}

type JikForm struct {
	value JikValue
}

func NewJikForm(initial JikValue) *JikForm {
	return &JikForm{value: withBuckets(initial)}
}

// withBuckets fills every empty approver bucket with one blank entry.
func withBuckets(v JikValue) JikValue {
	if v.Content == nil {
		v.Content = []content.Section{}
	}
	for _, kind := range ApproverTypes {
		slot, _ := v.Approvers.slot(kind)
		if len(*slot) == 0 {
			*slot = []Approver{{}}
		}
	}
	return v
}

// JikValueFrom loads a stored JIK into editor state. Approvers without a
// known type are dropped.
func JikValueFrom(j store.Jik) JikValue {
	v := JikValue{
		ID:                    j.ID,
		Title:                 j.Title,
		CompanyID:             j.CompanyID,
		UnitName:              j.UnitName,
		InitiativePartnership: j.InitiativePartnership,
		InvestValue:           j.InvestValue,
		ContractDurationYears: j.ContractDurationYears,
		Content:               sectionsFrom(j.Content),
		IsFinish:              j.IsFinish,
	}
	for _, a := range approversFrom(j.Approvers) {
		if a.Type == nil {
			continue
		}
		slot, err := v.Approvers.slot(*a.Type)
		if err != nil {
			continue
		}
		*slot = append(*slot, Approver{Name: a.Name, Email: a.Email})
	}
	return v
}

func (f *JikForm) Value() JikValue {
	return f.value
}

// Set replaces the draft. Empty approver buckets get a blank entry.
func (f *JikForm) Set(v JikValue) {
	f.value = withBuckets(v)
}

func (f *JikForm) HandleChange(field string, value any) error {
	v := f.value
	var err error
	switch field {
	case "title":
		v.Title, err = asString(field, value)
	case "company_id":
		v.CompanyID, err = asUint(field, value)
	case "unit_name":
		v.UnitName, err = asString(field, value)
	case "initiative_partnership":
		v.InitiativePartnership, err = asString(field, value)
	case "invest_value":
		v.InvestValue, err = asDecimal(field, value)
	case "contract_duration_years":
		v.ContractDurationYears, err = asInt(field, value)
	case "is_finish":
		v.IsFinish, err = asBool(field, value)
	default:
		return fmt.Errorf("%s: %w", field, ErrUnknownField)
	}
	if err != nil {
		return err
	}
	f.value = v
	return nil
}

func (f *JikForm) AddApprover(kind string) error {
	slot, err := f.value.Approvers.slot(kind)
	if err != nil {
		return err
	}
	*slot = appendItem(*slot, Approver{})
	return nil
}

// RemoveApprover is a no-op when it would empty the bucket.
func (f *JikForm) RemoveApprover(kind string, i int) error {
	slot, err := f.value.Approvers.slot(kind)
	if err != nil {
		return err
	}
	if len(*slot) <= 1 {
		return nil
	}
	list, err := removeAt(*slot, i)
	if err != nil {
		return err
	}
	*slot = list
	return nil
}

func (f *JikForm) UpdateApprover(kind string, i int, a Approver) error {
	slot, err := f.value.Approvers.slot(kind)
	if err != nil {
		return err
	}
	a.Type = nil
	list, err := replaceAt(*slot, i, a)
	if err != nil {
		return err
	}
	*slot = list
	return nil
}

func (f *JikForm) AddContentSection() {
	f.value.Content = appendItem(f.value.Content, newSection())
}

func (f *JikForm) RemoveContentSection(i int) error {
	list, err := removeAt(f.value.Content, i)
	if err != nil {
		return err
	}
	f.value.Content = list
	return nil
}

func (f *JikForm) UpdateContentSection(i int, s content.Section) error {
	list, err := replaceAt(f.value.Content, i, s)
	if err != nil {
		return err
	}
	f.value.Content = list
	return nil
}

func (f *JikForm) Validate() map[string]string {
	v := f.value
	missing := map[string]string{}
	if strings.TrimSpace(v.Title) == "" {
		missing["title"] = "required"
	}
	if v.CompanyID == 0 {
		missing["company_id"] = "required"
	}
	if strings.TrimSpace(v.UnitName) == "" {
		missing["unit_name"] = "required"
	}
	if !v.InvestValue.IsPositive() {
		missing["invest_value"] = "required"
	}
	if v.ContractDurationYears <= 0 {
		missing["contract_duration_years"] = "required"
	}
	for _, kind := range ApproverTypes {
		checkApprovers(missing, "approvers."+kind, v.Approvers.Get(kind))
	}
	checkSections(missing, v.Content)
	return missing
}

func (f *JikForm) Payload() JikPayload {
	v := f.value
	p := JikPayload{
		Title:                 strings.TrimSpace(v.Title),
		CompanyID:             v.CompanyID,
		UnitName:              v.UnitName,
		InitiativePartnership: v.InitiativePartnership,
		InvestValue:           v.InvestValue.Round(2),
		ContractDurationYears: v.ContractDurationYears,
		Content:               cloneSlice(v.Content),
		IsFinish:              v.IsFinish,
		Approvers:             v.Approvers.Flatten(),
	}
	if p.Content == nil {
		p.Content = []content.Section{}
	}
	return p
}

// Typed amounts use Indonesian grouping: dots for thousands, comma for decimals.
func asDecimal(field string, value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case string:
		cleaned := strings.NewReplacer(".", "", ",", ".", "Rp", "", " ", "").Replace(strings.TrimSpace(v))
		if cleaned == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", field, err)
		}
		return d, nil
	}
	return decimal.Zero, fmt.Errorf("%s: expected amount, got %T", field, value)
}
