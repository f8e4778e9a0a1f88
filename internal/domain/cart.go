package domain

type CartItem struct {
	ID          int64   `db:"id" json:"id"`
	CartID      int64   `db:"cart_id" json:"cart_id"`
	ProductID   int64   `db:"product_id" json:"product_id"`
	ProductName string  `db:"product_name" json:"product_name"`
	Quantity    int     `db:"quantity" json:"quantity"`
	UnitPrice   float64 `db:"unit_price" json:"unit_price"`
	Discount    float64 `db:"discount" json:"discount"`
}

// Cart is one customer's basket. Unit prices are captured when an item is
// added and are not refreshed from the catalog.
type Cart struct {
	ID         int64      `db:"id" json:"id"`
	Email      string     `db:"customer_email" json:"email"`
	TotalPrice float64    `db:"total_price" json:"total_price"`
	Items      []CartItem `db:"-" json:"items"`
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Total recomputes the running total from the items.
func (c *Cart) Total() float64 {
	total := 0.0
	for _, item := range c.Items {
		total += RoundMoney(item.UnitPrice * float64(item.Quantity))
	}
	return RoundMoney(total)
}

// Without returns a copy of the cart minus the given products, with the
// total recomputed.
func (c *Cart) Without(productIDs map[int64]struct{}) *Cart {
	rest := &Cart{ID: c.ID, Email: c.Email}
	for _, item := range c.Items {
		if _, ordered := productIDs[item.ProductID]; ordered {
			continue
		}
		rest.Items = append(rest.Items, item)
	}
	rest.TotalPrice = rest.Total()
	return rest
}
