package internal

import "time"

type Unit string

const (
	UnitCount      Unit = "un"
	UnitKilogram   Unit = "kg"
	UnitGram       Unit = "g"
	UnitLiter      Unit = "l"
	UnitMilliliter Unit = "ml"
	UnitBundle     Unit = "bd"
	UnitDozen      Unit = "dz"
)

// IsWeight reports whether the unit prices goods by physical amount (kg, g, l, ml).
func (u Unit) IsWeight() bool {
	switch u {
	case UnitKilogram, UnitGram, UnitLiter, UnitMilliliter:
		return true
	}
	return false
}

// IsCount reports whether the unit prices goods by count (un, bd, dz).
func (u Unit) IsCount() bool {
	switch u {
	case UnitCount, UnitBundle, UnitDozen:
		return true
	}
	return false
}

type Category string

const (
	CategoryMeat          Category = "carnes"
	CategoryWaterJuice    Category = "aguas/sucos"
	CategoryBiscuits      Category = "biscoitos"
	CategoryGroceries     Category = "alimentos"
	CategoryChocolates    Category = "chocolates/bombons"
	CategoryCondiments    Category = "condimentos"
	CategoryFrozen        Category = "congelados"
	CategoryDisposables   Category = "descartaveis"
	CategorySweets        Category = "guloseimas"
	CategoryDairy         Category = "laticinios"
	CategoryCleaning      Category = "limpeza"
	CategoryEggs          Category = "ovos"
	CategoryBakery        Category = "padaria"
	CategoryPetFood       Category = "racao"
	CategorySoftDrinks    Category = "refrigerante"
	CategoryProduce       Category = "feira"
	CategoryPasta         Category = "massas"
	CategoryUncategorized Category = "outros"
)

var allCategories = []Category{
	CategoryMeat,
	CategoryWaterJuice,
	CategoryBiscuits,
	CategoryGroceries,
	CategoryChocolates,
	CategoryCondiments,
	CategoryFrozen,
	CategoryDisposables,
	CategorySweets,
	CategoryDairy,
	CategoryCleaning,
	CategoryEggs,
	CategoryBakery,
	CategoryPetFood,
	CategorySoftDrinks,
	CategoryProduce,
	CategoryPasta,
	CategoryUncategorized,
}

func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func IsValidCategory(c Category) bool {
	for _, known := range allCategories {
		if known == c {
			return true
		}
	}
	return false
}

type ReceiptItem struct {
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity"`
	Unit      *Unit     `json:"unit,omitempty"`
	Weight    *float64  `json:"weight,omitempty"`
	UnitPrice float64   `json:"unitPrice"`
	LineTotal *float64  `json:"lineTotal,omitempty"`
	Category  *Category `json:"category,omitempty"`
}

// ReceiptMeta carries the document identity a persistence layer needs to
// deduplicate and attribute a receipt.
type ReceiptMeta struct {
	AccessKey string  `json:"accessKey,omitempty"`
	UF        string  `json:"uf,omitempty"`
	StoreName string  `json:"storeName,omitempty"`
	CNPJ      *string `json:"cnpj,omitempty"`
	CityName  *string `json:"cityName,omitempty"`
	SourceURL string  `json:"sourceUrl,omitempty"`
}

type ReceiptParseResult struct {
	SuggestedName      string        `json:"suggestedName"`
	MerchantName       *string       `json:"merchantName,omitempty"`
	IssuedAt           *time.Time    `json:"issuedAt,omitempty"`
	Items              []ReceiptItem `json:"items"`
	DeclaredItemCount  *int          `json:"declaredItemCount,omitempty"`
	DeclaredGrandTotal *float64      `json:"declaredGrandTotal,omitempty"`
	Strategy           string        `json:"strategy,omitempty"`
	Meta               *ReceiptMeta  `json:"meta,omitempty"`
}

const DefaultSuggestedName = "Compra (NFC-e)"

// EmptyResult is the explicit "nothing recognized" outcome; it is not an error.
func EmptyResult() *ReceiptParseResult {
	return &ReceiptParseResult{SuggestedName: DefaultSuggestedName, Items: []ReceiptItem{}}
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type StoredReceipt struct {
	ID         int
	AccessKey  string
	UF         string
	StoreID    *int
	StoreName  *string
	IssuedAt   *string
	Total      float64
	SourceURL  string
	CreatedAt  string
	ItemsCount int
}

type ReceiptExportRow struct {
	ReceiptID   int
	AccessKey   string
	IssuedAt    *string
	StoreName   *string
	ReceiptName string
	Total       float64
	LineNo      int
	ItemName    string
	Quantity    float64
	Unit        *string
	Weight      *float64
	UnitPrice   float64
	LineTotal   *float64
	Category    *string
}
