package scoring

import (
	"fmt"
	"math"
	"strings"

	"propsync/internal/domain/property"
)

// Scorer вычисляет расчетные поля записи. Для движка синхронизации это черный ящик.
type Scorer interface {
	Score(p property.Payload) (*property.Derived, error)
}

// Weights: веса компонент инвестиционной оценки
type Weights struct {
	PricePerAcre       float64
	AcreagePreference  float64
	WaterFeatures      float64
	AssessedValueRatio float64
}

// DefaultWeights: веса эталонной версии алгоритма
var DefaultWeights = Weights{
	PricePerAcre:       0.4,
	AcreagePreference:  0.3,
	WaterFeatures:      0.2,
	AssessedValueRatio: 0.1,
}

const (
	defaultMinAcres = 2.0
	defaultMaxAcres = 4.0
	maxWaterScore   = 10.0

	buyerPremiumRate = 0.05
	recordingFee     = 35.0
	closingCosts     = 100.0
)

var waterKeywords = []struct {
	words  []string
	weight float64
}{
	{words: []string{"creek", "stream", "river", "lake", "pond", "spring"}, weight: 3.0},
	{words: []string{"branch", "run", "brook", "tributary", "wetland", "marsh"}, weight: 2.0},
	{words: []string{"water", "aquatic", "riparian", "shore", "bank", "waterfront"}, weight: 1.0},
}

// Calculator: эталонная реализация Scorer
type Calculator struct {
	weights  Weights
	minAcres float64
	maxAcres float64
}

func NewCalculator() *Calculator {
	return &Calculator{
		weights:  DefaultWeights,
		minAcres: defaultMinAcres,
		maxAcres: defaultMaxAcres,
	}
}

// InvestmentScore возвращает оценку 0..100, округленную до одного знака
func (c *Calculator) InvestmentScore(pricePerAcre, acreage, waterScore, assessedRatio float64) float64 {
	priceScore := math.Min(100, 10000/math.Max(pricePerAcre, 1)) * c.weights.PricePerAcre

	var acreageScore float64
	switch {
	case acreage >= c.minAcres && acreage <= c.maxAcres:
		acreageScore = 100
	case acreage < c.minAcres:
		acreageScore = 100 * acreage / c.minAcres
	default:
		acreageScore = math.Max(0, 100-(acreage-c.maxAcres)*10)
	}
	acreageScore *= c.weights.AcreagePreference

	waterPart := math.Min(100, waterScore*10) * c.weights.WaterFeatures

	var ratioScore float64
	if assessedRatio > 0 {
		ratioScore = math.Min(100, 100/assessedRatio) * c.weights.AssessedValueRatio
	}

	return round(priceScore+acreageScore+waterPart+ratioScore, 1)
}

// WaterScore суммирует веса найденных в описании водных признаков
func (c *Calculator) WaterScore(description string) float64 {
	text := strings.ToLower(description)
	if text == "" {
		return 0
	}

	var score float64
	for _, group := range waterKeywords {
		for _, word := range group.words {
			if strings.Contains(text, word) {
				score += group.weight
			}
		}
	}
	return math.Min(score, maxWaterScore)
}

func (c *Calculator) Score(p property.Payload) (*property.Derived, error) {
	amount, ok := p.Number("amount")
	if !ok {
		return nil, fmt.Errorf("%w: amount is required for scoring", property.ErrInvalidData)
	}
	acreage, _ := p.Number("acreage")
	assessed, _ := p.Number("assessed_value")
	description, _ := p.String("description")

	var pricePerAcre float64
	if acreage > 0 {
		pricePerAcre = amount / acreage
	}
	var ratio float64
	if assessed > 0 {
		ratio = amount / assessed
	}
	water := c.WaterScore(description)

	return &property.Derived{
		PricePerAcre:       round(pricePerAcre, 2),
		AssessedValueRatio: round(ratio, 4),
		WaterScore:         water,
		InvestmentScore:    c.InvestmentScore(pricePerAcre, acreage, water, ratio),
		EstimatedAllInCost: round(amount+recordingFee+amount*buyerPremiumRate+closingCosts, 2),
	}, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
