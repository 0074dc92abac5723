package domain

// SourceFile is one crawled file: a repository-relative path and its text
// content.
type SourceFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Abstraction is one core concept identified in the codebase. FileIndices
// index into the crawled file list.
type Abstraction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	FileIndices []int  `json:"file_indices"`
}

// Relationship is a directed edge between two abstractions, by index.
type Relationship struct {
	From  int    `json:"from"`
	To    int    `json:"to"`
	Label string `json:"label"`
}

// RelationshipSet is the project summary plus the abstraction graph.
type RelationshipSet struct {
	Summary string         `json:"summary"`
	Details []Relationship `json:"details"`
}

// Chapter is one generated tutorial chapter in final order.
type Chapter struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// TutorialResult is the terminal output of a pipeline run, copied out of
// the shared state when a job completes.
type TutorialResult struct {
	OutputDir string    `json:"final_output_dir"`
	Summary   string    `json:"summary"`
	Chapters  []Chapter `json:"chapters"`
}
