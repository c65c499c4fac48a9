package domain

// Deal is the read model for a deal under analysis. Deals are owned by the
// ingestion side; this service only reads them.
type Deal struct {
	ID       string
	OrgID    string
	Name     string
	Industry string
	Price    float64
	EBITDA   float64
	Currency string
}

// ImpliedMultiple returns price/EBITDA, the cheapest available valuation
// signal. Returns 0 when EBITDA is non-positive.
func (d Deal) ImpliedMultiple() float64 {
	if d.EBITDA <= 0 {
		return 0
	}
	return d.Price / d.EBITDA
}
