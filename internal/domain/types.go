package domain

import "time"

// Issue is an immutable snapshot of a tracker issue, fetched per request.
type Issue struct {
	Key         string
	Summary     string
	Type        string
	Status      string
	Assignee    string // "Unassigned" when the tracker returns none
	Priority    string // "Not set" when the tracker returns none
	StoryPoints float64
}

// Sprint state values as returned by the Jira Agile API.
const (
	SprintStateFuture = "future"
	SprintStateActive = "active"
	SprintStateClosed = "closed"
)

// Sprint dates stay as the tracker's ISO-8601 strings; unstarted sprints may
// have no dates at all. Parsing happens in the metrics layer.
type Sprint struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Goal      string `json:"goal,omitempty"`
}

// SprintSpec describes a sprint to be created on a board.
type SprintSpec struct {
	Name      string
	StartDate string
	EndDate   string
	BoardID   int64
}

type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

type Board struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a conversation log.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// JiraConfig is a per-user tracker integration record. One active config per
// user+domain is enforced by the store.
type JiraConfig struct {
	UserID          string     `json:"userId"`
	Domain          string     `json:"domain"`
	Email           string     `json:"email"`
	APIToken        string     `json:"apiToken"`
	SelectedProject string     `json:"selectedProject"`
	SelectedBoard   int64      `json:"selectedBoard"`
	Active          bool       `json:"isActive"`
	LastUsed        *time.Time `json:"lastUsed,omitempty"`
}

// AIConfig holds a user's credentials for one AI engine.
type AIConfig struct {
	UserID      string
	Engine      string
	Credentials string
}

// SprintSnapshot is one timeline data point recorded by the snapshot job.
type SprintSnapshot struct {
	BoardID   int64     `json:"boardId"`
	SprintID  int64     `json:"sprintId"`
	Progress  int       `json:"progress"`
	Deviation int       `json:"deviation"`
	TakenAt   time.Time `json:"takenAt"`
}
