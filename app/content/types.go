package content

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Category string

const (
	CategoryEnvironment Category = "Environment"
	CategoryPolitics    Category = "Politics"
	CategoryBusiness    Category = "Business"
	CategoryTechnology  Category = "Technology"
	CategoryHealth      Category = "Health"
	CategoryScience     Category = "Science"
	CategorySociety     Category = "Society"
	CategoryEducation   Category = "Education"
	CategoryGeneral     Category = "General"
)

var categories = map[Category]bool{
	CategoryEnvironment: true,
	CategoryPolitics:    true,
	CategoryBusiness:    true,
	CategoryTechnology:  true,
	CategoryHealth:      true,
	CategoryScience:     true,
	CategorySociety:     true,
	CategoryEducation:   true,
	CategoryGeneral:     true,
}

// ParseCategory maps a free-form label onto the fixed category set.
// Labels outside the set become CategoryGeneral.
func ParseCategory(label string) Category {
	label = strings.Trim(strings.TrimSpace(label), ".:*\"'")
	if label == "" {
		return CategoryGeneral
	}

	// Models sometimes answer with more than one word ("Health / Science")
	caser := cases.Title(language.English)
	fields := strings.FieldsFunc(label, func(r rune) bool {
		return r == ' ' || r == '/' || r == ',' || r == '&'
	})
	for _, field := range fields {
		category := Category(caser.String(field))
		if categories[category] {
			return category
		}
	}

	return CategoryGeneral
}

func (c Category) Valid() bool {
	return categories[c]
}

type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Viewpoint struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

type Body struct {
	Detail               string      `json:"detail"`
	KeyFindings          []string    `json:"key_findings"`
	MultiplePerspectives []string    `json:"multiple_perspectives"`
	VerificationProcess  string      `json:"verification_process"`
	Viewpoints           []Viewpoint `json:"viewpoints"`
	Sources              []Source    `json:"sources"`
}

// Article is immutable once produced by the gateway.
type Article struct {
	ID        string    `json:"id"`
	Section   string    `json:"section"`
	Headline  string    `json:"headline"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Category  Category  `json:"category"`
	Body      Body      `json:"body"`
	OriginURL string    `json:"origin_url"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

// FactCheck is the answer to a reader's search query.
type FactCheck struct {
	Query     string    `json:"query"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Category  Category  `json:"category"`
	Body      Body      `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
