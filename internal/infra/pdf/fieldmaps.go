package pdf

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/homeward/backoffice-go/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed fieldmaps.yaml
var fieldMapsYAML []byte

type fieldRef struct {
	Field  string `yaml:"field"`
	Source string `yaml:"source"`
}

type stateMap struct {
	Text     []fieldRef `yaml:"text"`
	Checkbox []fieldRef `yaml:"checkbox"`
}

// FieldMaps maps contract data onto each state's PDF form.
type FieldMaps struct {
	States        map[string]stateMap `yaml:"states"`
	BuyerEntities map[string]string   `yaml:"buyer_entities"`
}

// LoadFieldMaps parses the embedded field maps.
func LoadFieldMaps() (*FieldMaps, error) {
	return ParseFieldMaps(fieldMapsYAML)
}

func ParseFieldMaps(data []byte) (*FieldMaps, error) {
	var fm FieldMaps
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return nil, fmt.Errorf("parse contract field maps: %w", err)
	}
	return &fm, nil
}

// BuyerEntity names the purchasing entity for a funding type.
func (fm *FieldMaps) BuyerEntity(fundingType string) string {
	if e, ok := fm.BuyerEntities[fundingType]; ok {
		return e
	}
	return fm.BuyerEntities["default"]
}

// ContractInput is what a contract is filled from.
type ContractInput struct {
	Offer       *domain.Offer
	Application *domain.Application
	Customer    *domain.Customer
	BuyingAgent *domain.Agent
}

// ContractData flattens the input into the keys the field maps reference.
func (fm *FieldMaps) ContractData(in ContractInput) map[string]any {
	o := in.Offer
	data := map[string]any{
		"property_street":        strings.TrimSpace(o.Address.Street + " " + o.Address.Unit),
		"property_city":          o.Address.City,
		"property_state":         o.Address.State,
		"property_zip":           o.Address.Zip,
		"built_before_1978":      o.BuiltBefore1978(),
		"buyer_entity":           fm.BuyerEntity(o.FundingType),
		"closing_date":           dateText(o.ClosingDate),
		"contract_date":          dateText(o.ContractDate),
		"option_period_end_date": dateText(o.OptionPeriodEndDate),
	}
	if o.Price != nil {
		data["price"] = fmt.Sprintf("%.2f", *o.Price)
	}
	if o.ContractDate != nil && o.OptionPeriodEndDate != nil {
		data["option_period_days"] = fmt.Sprint(o.ContractDate.DaysUntil(*o.OptionPeriodEndDate))
	}
	if in.Customer != nil {
		data["buyer_name"] = in.Customer.Name
	}
	if a := in.BuyingAgent; a != nil {
		data["buying_agent_name"] = a.Name
		data["buying_agent_phone"] = a.FormattedPhone()
		data["buying_agent_email"] = a.Email
	}
	return data
}

// Fields returns PDF field name to value for state. Text fields are
// strings and checkboxes are bools; sources without data are left out.
func (fm *FieldMaps) Fields(state string, data map[string]any) (map[string]any, error) {
	sm, ok := fm.States[strings.ToUpper(state)]
	if !ok {
		return nil, domain.NewValidationError("buying_state", fmt.Sprintf("no contract field map for state %q", state))
	}
	out := make(map[string]any, len(sm.Text)+len(sm.Checkbox))
	for _, f := range sm.Text {
		if v, ok := data[f.Source].(string); ok && v != "" {
			out[f.Field] = v
		}
	}
	for _, f := range sm.Checkbox {
		v, _ := data[f.Source].(bool)
		out[f.Field] = v
	}
	return out, nil
}

func dateText(d *domain.Date) string {
	if d == nil || d.IsZero() {
		return ""
	}
	return d.Format("01/02/2006")
}
