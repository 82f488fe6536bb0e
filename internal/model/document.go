// Package model holds the data types shared across the vector, graph, cache
// and coordinator layers — the tagged-union metadata record the distilled
// spec's dynamic JSON dicts collapse into.
package model

import "time"

// Document is the primary entity: one row in the vector index, one node in
// the graph index, zero or more cache entries, all keyed on the same ID.
type Document struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Metadata    Metadata  `json:"metadata"`
	ContentHash string    `json:"content_hash"`
}

// SourceType enumerates the recognised provenance of a Document's content.
type SourceType string

const (
	SourceText     SourceType = "text"
	SourceURL      SourceType = "url"
	SourceGithub   SourceType = "github"
	SourceWiki     SourceType = "wiki"
	SourceDocument SourceType = "document"
	SourceTextFile SourceType = "text_file"
	SourceCode     SourceType = "code"
	SourceConfig   SourceType = "config"
	SourceFile     SourceType = "file"
)

// ContentType enumerates the recognised media/format of a Document's content.
type ContentType string

const (
	ContentImage      ContentType = "image"
	ContentVideo      ContentType = "video"
	ContentDocument   ContentType = "document"
	ContentText       ContentType = "text"
	ContentWebpage    ContentType = "webpage"
	ContentSpreadsheet ContentType = "spreadsheet"
	ContentWord       ContentType = "word"
	ContentURL        ContentType = "url"
	ContentCode       ContentType = "code"
)

// Category is the fixed organisational label attached to code documents.
type Category string

const (
	CategoryLefarma     Category = "lefarma"
	CategoryE6Labs      Category = "e6labs"
	CategoryPersonal    Category = "personal"
	CategoryOpenSource  Category = "opensource"
	CategoryHobby       Category = "hobby"
	CategoryTrabajo     Category = "trabajo"
	CategoryDependencias Category = "dependencias"
	CategoryUncategorized Category = "uncategorized"
)

// Entities groups the three named-entity classes the enricher extracts.
type Entities struct {
	People        []string `json:"people,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Locations     []string `json:"locations,omitempty"`
}

// Metadata is the well-known field set every Document carries, plus an Extra
// overflow map for opaque caller-supplied fields.
type Metadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Source      string      `json:"source,omitempty"`
	SourceType  SourceType  `json:"source_type,omitempty"`
	ContentType ContentType `json:"content_type,omitempty"`
	Language    string      `json:"language,omitempty"` // "es", "en", or ""

	Keywords []string `json:"keywords,omitempty"`
	Entities Entities `json:"entities"`

	ContentHash string `json:"content_hash,omitempty"`
	WordCount   int    `json:"word_count"`
	CharCount   int    `json:"char_count"`

	ChunkIndex  int `json:"chunk_index"`
	TotalChunks int `json:"total_chunks"`

	// Repository fields, populated only when SourceType == SourceCode/SourceGithub.
	RepoOwner          string   `json:"repo_owner,omitempty"`
	RepoName           string   `json:"repo_name,omitempty"`
	FilePath           string   `json:"file_path,omitempty"`
	FileExtension      string   `json:"file_extension,omitempty"`
	FileLanguage       string   `json:"file_language,omitempty"`
	LastModifiedCommit string   `json:"last_modified_commit,omitempty"`
	Category           Category `json:"category,omitempty"`

	Labels []string `json:"labels,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// EntityTypeLabels reports which of Person/Organization/Location classes are
// present, at most one label per class, added to a graph node's labels.
// Unlike EntityLabels, these are plain identifiers, safe to use directly as
// Cypher node labels.
func (e Entities) EntityTypeLabels() []string {
	var labels []string
	if len(e.People) > 0 {
		labels = append(labels, "Person")
	}
	if len(e.Organizations) > 0 {
		labels = append(labels, "Organization")
	}
	if len(e.Locations) > 0 {
		labels = append(labels, "Location")
	}
	return labels
}

// EntityLabels renders the metadata's entities as "Person:Name"/"Org:Acme"/
// "Location:Berlin" style tags, used for display/indexing purposes where a
// full name-carrying tag is wanted rather than a bare Cypher label.
func (e Entities) EntityLabels() []string {
	labels := make([]string, 0, len(e.People)+len(e.Organizations)+len(e.Locations))
	for _, p := range e.People {
		labels = append(labels, "Person:"+p)
	}
	for _, o := range e.Organizations {
		labels = append(labels, "Org:"+o)
	}
	for _, l := range e.Locations {
		labels = append(labels, "Location:"+l)
	}
	return labels
}
