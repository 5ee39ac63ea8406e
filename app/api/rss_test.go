package api

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/debunkd/app/content"
	"github.com/lysyi3m/debunkd/app/topics"
)

func TestGenerateRSS(t *testing.T) {
	generator := NewGenerator("https://debunk.example.com/", "1.2.3")
	topic := topics.Topic{Name: "news", Title: "Latest News", Kind: topics.KindNews}

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	articles := []content.Article{
		{
			ID: "a1", Title: "Older", Summary: "Older summary", Category: content.CategoryScience,
			Body:      content.Body{Detail: "Long <detail>"},
			OriginURL: "https://news.example.com/older",
			ImageURL:  "https://placehold.co/300x200?text=Science&x=1",
			CreatedAt: created,
		},
		{ID: "a2", Title: "Newer", Summary: "Newer summary", Category: content.CategoryGeneral, CreatedAt: created.Add(time.Hour)},
	}

	rss, err := generator.Run(topic, articles)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.HasPrefix(rss, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Error("RSS should start with an XML declaration")
	}
	if !strings.Contains(rss, `<atom:link href="https://debunk.example.com/feeds/news" rel="self"`) {
		t.Error("RSS should contain the self link without a double slash")
	}
	if !strings.Contains(rss, "<generator>Debunkd/1.2.3</generator>") {
		t.Error("RSS should contain the generator version")
	}
	if !strings.Contains(rss, "<lastBuildDate>"+created.Add(time.Hour).Format(time.RFC1123Z)+"</lastBuildDate>") {
		t.Error("lastBuildDate should be the newest article time")
	}
	if strings.Index(rss, "<title>Newer</title>") > strings.Index(rss, "<title>Older</title>") {
		t.Error("Items should be listed newest first")
	}
	if !strings.Contains(rss, "<link>https://news.example.com/older</link>") {
		t.Error("Item link should prefer the origin URL")
	}
	if !strings.Contains(rss, "<link>https://debunk.example.com/api/articles/a2</link>") {
		t.Error("Item link should fall back to the article endpoint")
	}
	if !strings.Contains(rss, "<content:encoded>Long &lt;detail&gt;</content:encoded>") {
		t.Error("Detail should be escaped into content:encoded")
	}
	if !strings.Contains(rss, `url="https://placehold.co/300x200?text=Science&amp;x=1"`) {
		t.Error("Enclosure URL should be escaped")
	}

	var doc struct {
		Channel struct {
			Items []struct {
				GUID string `xml:"guid"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal([]byte(rss), &doc); err != nil {
		t.Fatalf("RSS is not well-formed XML: %v", err)
	}
	if len(doc.Channel.Items) != 2 || doc.Channel.Items[0].GUID != "a2" {
		t.Errorf("Unexpected items: %+v", doc.Channel.Items)
	}
}

func TestGenerateRSSEmptySection(t *testing.T) {
	generator := NewGenerator("https://debunk.example.com", "dev")

	rss, err := generator.Run(topics.Topic{Name: "issues", Title: "Issues"}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.Contains(rss, "<item>") {
		t.Error("Empty section should produce no items")
	}
	if !strings.Contains(rss, "<title>Issues</title>") {
		t.Error("Channel title should be the section title")
	}
}
