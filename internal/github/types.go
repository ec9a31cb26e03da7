package github

import "time"

// Notification is one entry from the notifications feed. The fields mirror
// the REST payload; a run treats the fetched sequence as immutable.
type Notification struct {
	ID         string     `json:"id"`
	Reason     string     `json:"reason"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Subject    Subject    `json:"subject"`
	Repository Repository `json:"repository"`
}

type Subject struct {
	Title string `json:"title"`
	Type  string `json:"type"`
}

type Repository struct {
	FullName string `json:"full_name"`
}

// IssueRequest is the create-issue payload.
type IssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

// Issue is the subset of the create-issue response we use.
type Issue struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}
