package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// driftedScorer имитирует клиента с измененной формулой
type driftedScorer struct {
	investment float64
	water      float64
}

func (d driftedScorer) InvestmentScore(_, _, _, _ float64) float64 { return d.investment }
func (d driftedScorer) WaterScore(_ string) float64             { return d.water }

func TestValidator_Validate(t *testing.T) {
	v, err := NewValidator(NewCalculator(), ValidatorConfig{AppVersionConstraint: ">= 1.0.0"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		algorithm  string
		app        string
		compatible bool
		message    string
	}{
		{name: "supported version", algorithm: "1.1.0", app: "1.2.0", compatible: true, message: "Algorithms are compatible"},
		{name: "empty version defaults", algorithm: "", app: "", compatible: true},
		{name: "unsupported version", algorithm: "2.0.0", compatible: false, message: "Algorithm version 2.0.0 not supported. Compatible versions: 1.0.0, 1.0.1, 1.1.0"},
		{name: "old app", algorithm: "1.0.0", app: "0.9.0", compatible: false, message: "App version 0.9.0 does not satisfy >= 1.0.0"},
		{name: "garbage app version", algorithm: "1.0.0", app: "not-a-version", compatible: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.algorithm, tt.app)

			assert.Equal(t, tt.compatible, res.Compatible)
			if tt.message != "" {
				assert.Equal(t, tt.message, res.Message)
			}
			assert.Equal(t, ExpectedInvestmentScore, res.InvestmentScore)
			assert.Equal(t, ExpectedWaterScore, res.WaterScore)
		})
	}
}

func TestValidator_SelfCheck_Drift(t *testing.T) {
	tests := []struct {
		name    string
		scorer  driftedScorer
		message string
	}{
		{
			name:    "investment drift",
			scorer:  driftedScorer{investment: 60, water: 3},
			message: "Investment score mismatch: expected 52.8, got 60.0",
		},
		{
			name:    "water drift",
			scorer:  driftedScorer{investment: 52.8, water: 2},
			message: "Water score mismatch: expected 3.0, got 2.0",
		},
		{
			name:    "within tolerance",
			scorer:  driftedScorer{investment: 52.85, water: 3},
			message: "Algorithms are compatible",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewValidator(tt.scorer, ValidatorConfig{})
			require.NoError(t, err)

			res := v.Validate("1.0.0", "")

			assert.Equal(t, tt.message, res.Message)
		})
	}
}

func TestNewValidator_BadConstraint(t *testing.T) {
	_, err := NewValidator(NewCalculator(), ValidatorConfig{AppVersionConstraint: "not a constraint"})
	assert.Error(t, err)
}
