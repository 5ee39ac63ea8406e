package gateway

import (
	"fmt"
	"strings"

	"github.com/lysyi3m/debunkd/app/topics"
)

const articleSchema = `{
  "title": "string",
  "summary": "one short paragraph",
  "category": "one of Environment, Politics, Business, Technology, Health, Science, Society, Education, General",
  "detail": "multi-paragraph fact-checked article",
  "key_findings": ["string"],
  "multiple_perspectives": ["one sentence per perspective"],
  "verification_process": "how the claims were checked",
  "viewpoints": [{"label": "string", "text": "string"}],
  "sources": [{"name": "string", "url": "string or empty"}]
}`

func headlinesPrompt(topic topics.Topic, count int) string {
	var subject string
	switch topic.Kind {
	case topics.KindMisconception:
		subject = "widespread misconceptions, myths or pieces of misinformation that a fact-checker could debunk"
	case topics.KindIssue:
		subject = "ongoing societal issues where public debate is often distorted by misinformation"
	default:
		subject = "current news stories"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "List exactly %d distinct headlines about %s", count, subject)
	if topic.Query != "" {
		fmt.Fprintf(&b, ", focused on %q", topic.Query)
	}
	b.WriteString(". Each headline is a single plain sentence without numbering or markdown. ")
	b.WriteString(`Answer with JSON only, in the form {"headlines": ["..."]}.`)
	return b.String()
}

func articlePrompt(headline string, topic topics.Topic, origin *NewsItem, sourceText string) string {
	var b strings.Builder

	switch topic.Kind {
	case topics.KindMisconception:
		fmt.Fprintf(&b, "Write a debunking article for the misconception %q. Explain what people believe, what the evidence shows, and why the myth persists.\n", headline)
	case topics.KindIssue:
		fmt.Fprintf(&b, "Write a balanced explainer about the issue %q. Separate established facts from contested claims.\n", headline)
	default:
		fmt.Fprintf(&b, "Write a fact-checked news article for the headline %q. Flag claims that cannot be verified.\n", headline)
	}

	b.WriteString("Provide a short summary, a one word category, key findings, the perspectives people hold, how the claims were verified, two or three viewpoints and the sources you relied on. ")
	b.WriteString("Do not use markdown and do not refer to yourself.\n")

	if origin != nil && origin.URL != "" {
		fmt.Fprintf(&b, "Original report: %s (%s)\n", origin.URL, origin.Source)
	}
	if sourceText != "" {
		fmt.Fprintf(&b, "Text of the original report:\n%s\n", sourceText)
	}

	fmt.Fprintf(&b, "Answer with JSON only, matching this schema:\n%s", articleSchema)
	return b.String()
}

func classifyPrompt(query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A reader searched a fact-checking site for %q.\n", query)
	b.WriteString(`Classify the search as "news" when it is about a current event, "general" when it is a claim, myth or topic that needs no recent reporting, or "unclear" when it cannot be interpreted. `)
	b.WriteString("For news searches also give a short keyword search term for a news archive, without punctuation. ")
	b.WriteString(`Answer with JSON only, in the form {"kind": "news|general|unclear", "keywords": "..."}.`)
	return b.String()
}

func factCheckPrompt(query string, class Classification, sources []NewsItem) string {
	var b strings.Builder

	if class.Kind == QueryNews {
		fmt.Fprintf(&b, "Write a fact-checked news report answering the search %q, based strictly on the reports listed below.\n", query)
	} else {
		fmt.Fprintf(&b, "Write a detailed fact-check of %q. Provide evidence for every claim.\n", query)
	}

	b.WriteString("Provide a short summary, a one word category, key findings, the perspectives people hold, how the claims were verified, two or three viewpoints and the sources you relied on. ")
	b.WriteString("Do not use markdown and do not refer to yourself.\n")

	if len(sources) > 0 {
		b.WriteString("Reports:\n")
		for _, source := range sources {
			fmt.Fprintf(&b, "- %s (%s) %s\n", source.Title, source.Source, source.URL)
		}
	}

	fmt.Fprintf(&b, "Answer with JSON only, matching this schema:\n%s", articleSchema)
	return b.String()
}
