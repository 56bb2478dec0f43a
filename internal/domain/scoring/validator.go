package scoring

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// DefaultAlgorithmVersion подставляется, если клиент не прислал версию
const DefaultAlgorithmVersion = "1.0.0"

// DefaultAlgorithmVersions: версии алгоритма, совместимые с сервером
var DefaultAlgorithmVersions = []string{"1.0.0", "1.0.1", "1.1.0"}

// Эталонный случай: обе стороны обязаны получить одинаковый результат
const (
	referencePricePerAcre  = 5000.0
	referenceAcreage       = 3.0
	referenceWaterScore    = 6.0
	referenceAssessedRatio = 0.8
	referenceDescription   = "Beautiful creek frontage"

	ExpectedInvestmentScore = 52.8
	ExpectedWaterScore      = 3.0
)

// ReferenceScorer: функции, прогоняемые на эталонных входах
type ReferenceScorer interface {
	InvestmentScore(pricePerAcre, acreage, waterScore, assessedRatio float64) float64
	WaterScore(description string) float64
}

// Result: итог проверки совместимости
type Result struct {
	Compatible       bool    `json:"compatible"`
	Message          string  `json:"message"`
	AlgorithmVersion string  `json:"algorithm_version,omitempty"`
	InvestmentScore  float64 `json:"investment_score"`
	WaterScore       float64 `json:"water_score"`
}

type ValidatorConfig struct {
	AlgorithmVersions    []string
	AppVersionConstraint string
	Tolerance            float64
}

// Validator: шлюз совместимости клиента и сервера
type Validator struct {
	scorer     ReferenceScorer
	versions   []string
	constraint *semver.Constraints
	rawRange   string
	tolerance  float64
}

func NewValidator(scorer ReferenceScorer, cfg ValidatorConfig) (*Validator, error) {
	v := &Validator{
		scorer:    scorer,
		versions:  cfg.AlgorithmVersions,
		tolerance: cfg.Tolerance,
	}
	if len(v.versions) == 0 {
		v.versions = DefaultAlgorithmVersions
	}
	if v.tolerance <= 0 {
		v.tolerance = 0.1
	}

	if cfg.AppVersionConstraint != "" {
		c, err := semver.NewConstraint(cfg.AppVersionConstraint)
		if err != nil {
			return nil, fmt.Errorf("invalid app version constraint %q: %w", cfg.AppVersionConstraint, err)
		}
		v.constraint = c
		v.rawRange = cfg.AppVersionConstraint
	}

	return v, nil
}

// Validate проверяет эталонные расчеты, версию алгоритма и версию приложения
func (v *Validator) Validate(algorithmVersion, appVersion string) Result {
	if algorithmVersion == "" {
		algorithmVersion = DefaultAlgorithmVersion
	}

	res := v.SelfCheck()
	res.AlgorithmVersion = algorithmVersion
	if !res.Compatible {
		return res
	}

	if !slices.Contains(v.versions, algorithmVersion) {
		res.Compatible = false
		res.Message = fmt.Sprintf("Algorithm version %s not supported. Compatible versions: %s",
			algorithmVersion, strings.Join(v.versions, ", "))
		return res
	}

	if appVersion != "" && v.constraint != nil {
		ver, err := semver.NewVersion(appVersion)
		if err != nil {
			res.Compatible = false
			res.Message = fmt.Sprintf("Invalid app version %q: %v", appVersion, err)
			return res
		}
		if !v.constraint.Check(ver) {
			res.Compatible = false
			res.Message = fmt.Sprintf("App version %s does not satisfy %s", appVersion, v.rawRange)
			return res
		}
	}

	return res
}

// SelfCheck прогоняет только эталонный расчет
func (v *Validator) SelfCheck() Result {
	investment := v.scorer.InvestmentScore(referencePricePerAcre, referenceAcreage, referenceWaterScore, referenceAssessedRatio)
	water := v.scorer.WaterScore(referenceDescription)

	res := Result{
		Compatible:      true,
		Message:         "Algorithms are compatible",
		InvestmentScore: investment,
		WaterScore:      water,
	}

	if math.Abs(investment-ExpectedInvestmentScore) > v.tolerance {
		res.Compatible = false
		res.Message = fmt.Sprintf("Investment score mismatch: expected %.1f, got %.1f", ExpectedInvestmentScore, investment)
		return res
	}
	if math.Abs(water-ExpectedWaterScore) > v.tolerance {
		res.Compatible = false
		res.Message = fmt.Sprintf("Water score mismatch: expected %.1f, got %.1f", ExpectedWaterScore, water)
	}

	return res
}
