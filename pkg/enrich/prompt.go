package enrich

import (
	"fmt"
	"strings"

	"github.com/eduthreat/sentinel/pkg/enrich/schema"
	"github.com/eduthreat/sentinel/pkg/model"
)

const systemPrompt = `You are a cyber threat intelligence analyst specializing in attacks on educational institutions (universities, colleges, K-12 schools, school districts, research institutes).

Extract structured incident data from the article you are given. Rules:
- Respond with a single JSON object and nothing else.
- Populate only fields the article actually supports. Unknown values are null, never 0, false, or [].
- All dates use ISO format YYYY-MM-DD.
- All monetary amounts are plain USD numbers ("$4.75 million" becomes 4750000).
- Enumerated fields must use exactly the values listed in the schema.
- Set is_edu_cyber_incident to false if the article does not describe a cyber incident affecting an educational institution, and explain why in education_relevance.reasoning.`

// maxArticleChars bounds the article text included in the prompt.
const maxArticleChars = 28000

// BuildUserPrompt assembles the extraction prompt for one article.
func BuildUserPrompt(incident *model.Incident, article *model.Article) string {
	text := article.Content
	if len(text) > maxArticleChars {
		text = text[:maxArticleChars]
	}

	var b strings.Builder
	b.WriteString("Extract incident data conforming to this JSON schema:\n\n")
	b.WriteString(schema.PromptJSON())
	b.WriteString("\n\n")
	if incident.UniversityName != "" {
		fmt.Fprintf(&b, "Known victim (from the feed, may be imprecise): %s\n", incident.UniversityName)
	}
	fmt.Fprintf(&b, "Article URL: %s\n", article.URL)
	if article.Title != "" {
		fmt.Fprintf(&b, "Article title: %s\n", article.Title)
	}
	if article.PublishDate != "" {
		fmt.Fprintf(&b, "Article published: %s\n", article.PublishDate)
	}
	b.WriteString("\nArticle text:\n")
	b.WriteString(text)
	return b.String()
}
