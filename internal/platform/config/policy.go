package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/partshub/api/internal/domain"
)

// PolicyFile is the YAML document holding costing policy overrides and named rate presets.
//
//	taxRate: "0.10"
//	dutyTreatment: informational
//	presets:
//	  - name: sea-standard
//	    rates:
//	      exchangeRate: "4.75"
//	      oceanFreight: "3500"
//	      inlandTrucking: "1500"
//	      duty: {mode: percent, percent: "5"}
//	      consumablePerUnit: "0.30"
//	      licensePerUnit: "2.00"
type PolicyFile struct {
	TaxRate       string         `yaml:"taxRate"`
	DutyTreatment string         `yaml:"dutyTreatment"`
	Presets       []presetRecord `yaml:"presets"`
}

type presetRecord struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Rates       ratesRecord `yaml:"rates"`
}

type ratesRecord struct {
	ExchangeRate      string     `yaml:"exchangeRate"`
	OceanFreight      string     `yaml:"oceanFreight"`
	InlandTrucking    string     `yaml:"inlandTrucking"`
	Duty              dutyRecord `yaml:"duty"`
	ConsumablePerUnit string     `yaml:"consumablePerUnit"`
	LicensePerUnit    string     `yaml:"licensePerUnit"`
}

type dutyRecord struct {
	Mode    string `yaml:"mode"`
	Percent string `yaml:"percent"`
}

// CostingPolicy is the decoded policy file.
type CostingPolicy struct {
	TaxRate       *decimal.Decimal
	DutyTreatment string
	Presets       []domain.RatePreset
}

// LoadPolicyFile reads and decodes the policy file at path. A missing path yields an empty policy.
func LoadPolicyFile(path string) (CostingPolicy, error) {
	if strings.TrimSpace(path) == "" {
		return CostingPolicy{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CostingPolicy{}, nil
		}
		return CostingPolicy{}, fmt.Errorf("config: read policy file %s: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy document.
func ParsePolicy(data []byte) (CostingPolicy, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return CostingPolicy{}, fmt.Errorf("config: decode policy: %w", err)
	}

	var policy CostingPolicy
	if raw := strings.TrimSpace(file.TaxRate); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return CostingPolicy{}, fmt.Errorf("config: policy taxRate %q: %w", raw, err)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return CostingPolicy{}, fmt.Errorf("config: policy taxRate %s must be between 0 and 1", rate)
		}
		policy.TaxRate = &rate
	}
	policy.DutyTreatment = strings.ToLower(strings.TrimSpace(file.DutyTreatment))

	seen := make(map[string]struct{}, len(file.Presets))
	for i, record := range file.Presets {
		name := strings.TrimSpace(record.Name)
		if name == "" {
			return CostingPolicy{}, fmt.Errorf("config: preset %d: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return CostingPolicy{}, fmt.Errorf("config: preset %q declared twice", name)
		}
		seen[name] = struct{}{}
		rates, err := record.Rates.toDomain()
		if err != nil {
			return CostingPolicy{}, fmt.Errorf("config: preset %q: %w", name, err)
		}
		policy.Presets = append(policy.Presets, domain.RatePreset{
			Name:        name,
			Description: strings.TrimSpace(record.Description),
			Rates:       rates,
		})
	}
	return policy, nil
}

func (r ratesRecord) toDomain() (domain.RateConfig, error) {
	var rates domain.RateConfig
	fields := []struct {
		name   string
		raw    string
		target *decimal.Decimal
	}{
		{"exchangeRate", r.ExchangeRate, &rates.ExchangeRate},
		{"oceanFreight", r.OceanFreight, &rates.OceanFreight},
		{"inlandTrucking", r.InlandTrucking, &rates.InlandTrucking},
		{"consumablePerUnit", r.ConsumablePerUnit, &rates.ConsumablePerUnit},
		{"licensePerUnit", r.LicensePerUnit, &rates.LicensePerUnit},
	}
	for _, field := range fields {
		value, err := decimalOrZero(field.raw)
		if err != nil {
			return domain.RateConfig{}, fmt.Errorf("%s: %w", field.name, err)
		}
		*field.target = value
	}

	switch strings.ToLower(strings.TrimSpace(r.Duty.Mode)) {
	case "", "exempt":
		rates.Duty = domain.ExemptDuty()
	case "percent":
		percent, err := decimalOrZero(r.Duty.Percent)
		if err != nil {
			return domain.RateConfig{}, fmt.Errorf("duty.percent: %w", err)
		}
		rates.Duty = domain.PercentDuty(percent)
	default:
		return domain.RateConfig{}, fmt.Errorf("duty.mode %q is not supported", r.Duty.Mode)
	}
	return rates, nil
}

func decimalOrZero(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
