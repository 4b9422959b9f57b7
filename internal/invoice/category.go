package invoice

import (
	"fmt"
	"strings"
)

// Category is the closed set of expense categories an invoice can be filed
// under. CategoryOther is the fallback for anything the oracle reports that
// is not an exact match.
type Category uint8

const (
	CategoryMaintenance Category = iota
	CategoryFuel
	CategoryVehicle
	CategoryElectricity
	CategoryWater
	CategoryRent
	CategoryMunicipalTax
	CategoryTelecom
	CategoryRawMaterials
	CategoryInventory
	CategoryOfficeSupplies
	CategoryEquipment
	CategoryProfessionalServices
	CategorySalaries
	CategoryInsurance
	CategoryMarketing
	CategorySoftware
	CategoryTravel
	CategoryMeals
	CategoryOther

	categoryCount
)

// FirstAmountColumn is the zero-based ledger column of the first category
// (column D). Categories occupy consecutive columns from there.
const FirstAmountColumn = 3

// DefaultColumn receives the amount when a category has no column of its own.
const DefaultColumn = FirstAmountColumn

type categoryInfo struct {
	id      string
	labelHE string
	labelEN string
}

var categoryTable = [categoryCount]categoryInfo{
	CategoryMaintenance:          {"maintenance", "אחזקה", "Maintenance"},
	CategoryFuel:                 {"fuel", "דלק", "Fuel"},
	CategoryVehicle:              {"vehicle", "רכב", "Vehicle"},
	CategoryElectricity:          {"electricity", "חשמל", "Electricity"},
	CategoryWater:                {"water", "מים", "Water"},
	CategoryRent:                 {"rent", "שכירות", "Rent"},
	CategoryMunicipalTax:         {"municipal_tax", "ארנונה", "Municipal tax"},
	CategoryTelecom:              {"telecom", "תקשורת", "Telecom"},
	CategoryRawMaterials:         {"raw_materials", "חומרי גלם", "Raw materials"},
	CategoryInventory:            {"inventory", "מלאי", "Inventory"},
	CategoryOfficeSupplies:       {"office_supplies", "ציוד משרדי", "Office supplies"},
	CategoryEquipment:            {"equipment", "ציוד", "Equipment"},
	CategoryProfessionalServices: {"professional_services", "שירותים מקצועיים", "Professional services"},
	CategorySalaries:             {"salaries", "משכורות", "Salaries"},
	CategoryInsurance:            {"insurance", "ביטוח", "Insurance"},
	CategoryMarketing:            {"marketing", "פרסום ושיווק", "Marketing"},
	CategorySoftware:             {"software", "תוכנה ומנויים", "Software and subscriptions"},
	CategoryTravel:               {"travel", "נסיעות", "Travel"},
	CategoryMeals:                {"meals", "כיבוד", "Meals"},
	CategoryOther:                {"other", "אחר", "Other"},
}

var categoryByID = func() map[string]Category {
	m := make(map[string]Category, categoryCount)
	for i, info := range categoryTable {
		m[info.id] = Category(i)
	}
	return m
}()

// Categories returns every category in ledger column order.
func Categories() []Category {
	out := make([]Category, 0, categoryCount)
	for c := Category(0); c < categoryCount; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCategory maps a canonical identifier to its category. Matching is
// exact and case-sensitive; anything else resolves to CategoryOther.
func ParseCategory(id string) Category {
	if c, ok := categoryByID[id]; ok {
		return c
	}
	return CategoryOther
}

// ResolveCategory is ParseCategory for an optional value. A missing value
// resolves to CategoryOther.
func ResolveCategory(raw *string) Category {
	if raw == nil {
		return CategoryOther
	}
	return ParseCategory(*raw)
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	return c < categoryCount
}

// ID returns the canonical identifier used in prompts and storage.
func (c Category) ID() string {
	if !c.Valid() {
		return categoryTable[CategoryOther].id
	}
	return categoryTable[c].id
}

func (c Category) String() string {
	return c.ID()
}

// Label returns the human-readable name of c in the given locale.
func (c Category) Label(l Locale) string {
	if !c.Valid() {
		c = CategoryOther
	}
	if l == English {
		return categoryTable[c].labelEN
	}
	return categoryTable[c].labelHE
}

// Column returns the zero-based ledger column holding amounts of this
// category. Values outside the enumeration land in DefaultColumn.
func (c Category) Column() int {
	if !c.Valid() {
		return DefaultColumn
	}
	return FirstAmountColumn + int(c)
}

// MarshalText encodes the category as its identifier.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.ID()), nil
}

// UnmarshalText decodes an identifier, falling back to CategoryOther.
func (c *Category) UnmarshalText(b []byte) error {
	*c = ParseCategory(string(b))
	return nil
}

// CategoryIDs returns the identifiers joined for use in prompts,
// for example "fuel, electricity, ...".
func CategoryIDs(sep string) string {
	ids := make([]string, 0, categoryCount)
	for _, info := range categoryTable {
		ids = append(ids, info.id)
	}
	return strings.Join(ids, sep)
}

// ColumnName converts a zero-based column index into spreadsheet letters.
func ColumnName(col int) string {
	if col < 0 {
		panic(fmt.Sprintf("invoice: negative column %d", col))
	}
	name := ""
	for col >= 0 {
		name = string(rune('A'+col%26)) + name
		col = col/26 - 1
	}
	return name
}
