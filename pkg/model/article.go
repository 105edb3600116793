package model

// Article holds the fetched content of one URL belonging to an incident.
// Several articles may exist for an incident while enrichment scores them;
// only the primary one survives the enrichment transaction.
type Article struct {
	IncidentID      string `json:"incident_id"`
	URL             string `json:"url"`
	Title           string `json:"title,omitempty"`
	Author          string `json:"author,omitempty"`
	PublishDate     string `json:"publish_date,omitempty"` // ISO YYYY-MM-DD
	Content         string `json:"content,omitempty"`
	FetchSuccessful bool   `json:"fetch_successful"`
	ErrorMessage    string `json:"error_message,omitempty"`
	ContentLength   int    `json:"content_length"`
	IsPrimary       bool   `json:"is_primary"`
}

// Usable reports whether the article carries enough text to be worth
// sending to the model.
func (a *Article) Usable() bool {
	return a.FetchSuccessful && len(a.Content) > 50
}
