package api

import (
	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/jobs"
)

// BuildRequest is the body of both the synchronous build endpoint and
// asynchronous job creation. Exactly one of repo_url and local_dir must
// be set.
type BuildRequest struct {
	RepoURL         string   `json:"repo_url" validate:"omitempty,url"`
	LocalDir        string   `json:"local_dir"`
	ProjectName     string   `json:"project_name" validate:"omitempty,max=200"`
	GitHubToken     string   `json:"github_token"`
	OutputDir       string   `json:"output_dir"`
	Language        string   `json:"language" validate:"omitempty,max=50"`
	IncludePatterns []string `json:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns"`
	MaxFileSize     int64    `json:"max_file_size" validate:"omitempty,gte=1"`
	MaxAbstractions int      `json:"max_abstractions" validate:"omitempty,gte=1,lte=50"`

	// WebhookURL is honored on job creation only.
	WebhookURL string `json:"webhook_url" validate:"omitempty,url"`
}

// Inputs converts the request into the job input snapshot.
func (r BuildRequest) Inputs() jobs.Inputs {
	return jobs.Inputs{
		RepoURL:         r.RepoURL,
		LocalDir:        r.LocalDir,
		ProjectName:     r.ProjectName,
		GitHubToken:     r.GitHubToken,
		OutputDir:       r.OutputDir,
		Language:        r.Language,
		IncludePatterns: r.IncludePatterns,
		ExcludePatterns: r.ExcludePatterns,
		MaxFileSize:     r.MaxFileSize,
		MaxAbstractions: r.MaxAbstractions,
	}
}

// JobAccepted is returned on job creation and on a synchronous build
// that exceeded its duration budget.
type JobAccepted struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

// ProjectCreateRequest saves a completed job's result as an editable
// project.
type ProjectCreateRequest struct {
	JobID string `json:"job_id" validate:"required,uuid"`
}

// ProjectCreated is returned on project creation.
type ProjectCreated struct {
	ProjectID string `json:"project_id"`
}

// ProjectUpdateRequest carries a partial update. Absent fields are left
// unchanged.
type ProjectUpdateRequest struct {
	Summary  *string          `json:"summary"`
	Chapters []domain.Chapter `json:"chapters"`
}
