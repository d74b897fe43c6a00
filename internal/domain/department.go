package domain

import "fmt"

// Category is the municipal department a complaint is filed under.
type Category string

const (
	CategoryWaterSewage      Category = "Water Supply & Sewage"
	CategoryRoads            Category = "Roads & Potholes"
	CategoryWaste            Category = "Waste Management"
	CategoryStreetlights     Category = "Streetlights & Electricity"
	CategoryPublicHealth     Category = "Public Health & Sanitation"
	CategoryIllegalConstruct Category = "Illegal Construction & Encroachment"
	CategoryOther            Category = "Other"
)

// Categories is the fixed department list.
var Categories = []Category{
	CategoryWaterSewage,
	CategoryRoads,
	CategoryWaste,
	CategoryStreetlights,
	CategoryPublicHealth,
	CategoryIllegalConstruct,
	CategoryOther,
}

// ParseCategory matches the exact department name.
func ParseCategory(raw string) (Category, error) {
	for _, category := range Categories {
		if string(category) == raw {
			return category, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", raw)
}
