package property

import "time"

// Статусы объекта в воронке покупки
const (
	StatusNew       = "new"
	StatusReviewing = "reviewing"
	StatusBidReady  = "bid_ready"
	StatusRejected  = "rejected"
	StatusPurchased = "purchased"
)

// Record: синхронизируемый объект недвижимости.
// LastModified монотонно не убывает для одного ID, удаление выражается флагом IsDeleted.
type Record struct {
	ID           string    `json:"id"`
	Payload      Payload   `json:"payload"`
	Derived      *Derived  `json:"derived,omitempty"`
	LastModified time.Time `json:"last_modified"`
	CreatedAt    time.Time `json:"created_at"`
	IsDeleted    bool      `json:"is_deleted"`
	LastWriter   string    `json:"last_writer,omitempty"`
}

// Derived: расчетные поля, только для отображения.
// В обнаружении конфликтов не участвуют.
type Derived struct {
	PricePerAcre       float64 `json:"price_per_acre"`
	AssessedValueRatio float64 `json:"assessed_value_ratio"`
	WaterScore         float64 `json:"water_score"`
	InvestmentScore    float64 `json:"investment_score"`
	EstimatedAllInCost float64 `json:"estimated_all_in_cost"`
}

// Active возвращает true для не удаленной записи
func (r *Record) Active() bool {
	return r != nil && !r.IsDeleted
}
