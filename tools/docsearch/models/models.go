package models

// Result is one document returned by a search backend. Link is the only
// field the retrieval pipeline requires; the rest is kept for logging.
type Result struct {
	Link    string `json:"link"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}
