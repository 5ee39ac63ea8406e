package api

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/debunkd/app/content"
	"github.com/lysyi3m/debunkd/app/topics"
)

// Generator renders a section snapshot as an RSS 2.0 document.
type Generator struct {
	baseURL string
	version string
}

func NewGenerator(baseURL, version string) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
	}
}

func (g *Generator) Run(topic topics.Topic, articles []content.Article) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", topic.Title, 4)
	g.writeElement(&buf, "link", g.baseURL+"/", 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Fact-checked %s articles", strings.ToLower(topic.Title)), 4)

	selfLink := fmt.Sprintf("%s/feeds/%s", g.baseURL, topic.Name)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().In(time.Local)
	if len(articles) > 0 {
		lastBuildDate = cmp.Or(articles[len(articles)-1].CreatedAt, lastBuildDate)
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Debunkd/%s", g.version), 4)
	g.writeElement(&buf, "language", "en", 4)

	// newest first, as feed readers expect
	for i := len(articles) - 1; i >= 0; i-- {
		g.writeItem(&buf, articles[i])
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, article content.Article) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(article.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", cmp.Or(article.Title, article.Headline), 6)
	g.writeElement(buf, "link", cmp.Or(article.OriginURL, fmt.Sprintf("%s/api/articles/%s", g.baseURL, article.ID)), 6)
	g.writeElement(buf, "description", cmp.Or(article.Summary, "No description available"), 6)

	if article.Body.Detail != "" && article.Body.Detail != article.Summary {
		g.writeElement(buf, "content:encoded", article.Body.Detail, 6)
	}

	if !article.CreatedAt.IsZero() {
		g.writeElement(buf, "pubDate", article.CreatedAt.Format(time.RFC1123Z), 6)
	}

	g.writeElement(buf, "category", string(article.Category), 6)

	if article.ImageURL != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"image/png\" />\n",
			html.EscapeString(article.ImageURL)))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, text string, indent int) {
	if text == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(text))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
