package domain

type Product struct {
	ID           int64   `db:"id" json:"id"`
	Name         string  `db:"name" json:"name"`
	Price        float64 `db:"price" json:"price"`
	Discount     float64 `db:"discount" json:"discount"`
	SpecialPrice float64 `db:"special_price" json:"special_price"`
	Quantity     int     `db:"quantity" json:"quantity"`
}

// RecalculateSpecialPrice keeps SpecialPrice equal to
// price - price*discount/100, rounded to cents.
func (p *Product) RecalculateSpecialPrice() {
	p.SpecialPrice = RoundMoney(p.Price - p.Price*p.Discount/100)
}

func (p *Product) SetPrice(price float64) {
	p.Price = price
	p.RecalculateSpecialPrice()
}

func (p *Product) SetDiscount(discount float64) {
	p.Discount = discount
	p.RecalculateSpecialPrice()
}

func (p *Product) HasStock(quantity int) bool {
	return quantity > 0 && p.Quantity >= quantity
}
