package models

// ViewPreference is the saved table state of a console view.
type ViewPreference struct {
	SortKey  string `json:"sort_key"`
	Desc     bool   `json:"desc"`
	HideZero bool   `json:"hide_zero"`
	Tab      string `json:"tab,omitempty"`
}

// ClientError is an exception reported by the browser's error boundary.
type ClientError struct {
	ID             string `json:"id"`
	UserID         int64  `json:"user_id"`
	Message        string `json:"message"`
	Stack          string `json:"stack,omitempty"`
	ComponentStack string `json:"component_stack,omitempty"`
	URL            string `json:"url"`
	UserAgent      string `json:"user_agent"`
	CreatedAt      int64  `json:"created_at"`
}
