package store

// Idea is a captured note.
type Idea struct {
	ID           string `json:"id"`
	CreatedAt    int64  `json:"createdAt"` // milliseconds since epoch
	UpdatedAt    int64  `json:"updatedAt"`
	Text         string `json:"text"`
	Title        string `json:"title,omitempty"`
	Archived     bool   `json:"archived"`
	SourceApp    string `json:"sourceApp,omitempty"`
	MarkdownPath string `json:"markdownPath,omitempty"`
}

// IdeaFilter selects ideas by archive flag. A nil Archived matches all.
type IdeaFilter struct {
	Archived *bool
}

// Active returns a filter for non-archived ideas.
func Active() IdeaFilter {
	f := false
	return IdeaFilter{Archived: &f}
}

// ArchivedOnly returns a filter for archived ideas.
func ArchivedOnly() IdeaFilter {
	t := true
	return IdeaFilter{Archived: &t}
}

// IdeaUpdate is a partial update. Nil fields keep their value; a Title
// pointing at "" clears the title.
type IdeaUpdate struct {
	Text  *string
	Title *string
}

// IdeaOption configures a newly captured idea.
type IdeaOption func(*Idea)

// WithSourceApp records the application the idea was captured from.
func WithSourceApp(app string) IdeaOption {
	return func(i *Idea) {
		i.SourceApp = app
	}
}

// WithTitle sets an initial title.
func WithTitle(title string) IdeaOption {
	return func(i *Idea) {
		i.Title = title
	}
}

// StoredVector is one decoded embedding row.
type StoredVector struct {
	IdeaID string
	Vector []float32
}

// Stats summarizes the contents of the store.
type Stats struct {
	Ideas         int64 `json:"ideas"`
	Archived      int64 `json:"archived"`
	Embeddings    int64 `json:"embeddings"`
	SchemaVersion int   `json:"schemaVersion"`
	SizeBytes     int64 `json:"sizeBytes"`
}
