package content

import (
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"Technology":        CategoryTechnology,
		"technology":        CategoryTechnology,
		"  HEALTH. ":        CategoryHealth,
		"Health / Science":  CategoryHealth,
		"Label: Politics":   CategoryPolitics,
		"sports":            CategoryGeneral,
		"":                  CategoryGeneral,
		"\"environment\"":   CategoryEnvironment,
		"Society & Culture": CategorySociety,
	}

	for input, expected := range tests {
		if got := ParseCategory(input); got != expected {
			t.Errorf("ParseCategory(%q): expected %s, got %s", input, expected, got)
		}
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := NewStore()

	if _, ok := store.Get("missing"); ok {
		t.Error("Expected missing article to be reported as not found")
	}

	store.Put(Article{ID: "a", Title: "first"})
	store.Put(Article{ID: "a", Title: "second"})

	article, ok := store.Get("a")
	if !ok {
		t.Fatal("Expected article to be found")
	}
	if article.Title != "second" {
		t.Errorf("Expected overwrite, got title '%s'", article.Title)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 article, got %d", store.Len())
	}
}
