package eventmodels

type Category string

const (
	CategoryMarket           Category = "market"
	CategoryNews             Category = "news"
	CategoryLargeTransaction Category = "large_transaction"
)

var AllCategories = []Category{CategoryMarket, CategoryNews, CategoryLargeTransaction}

func (c Category) Valid() bool {
	switch c {
	case CategoryMarket, CategoryNews, CategoryLargeTransaction:
		return true
	}

	return false
}

func (c Category) String() string {
	return string(c)
}
