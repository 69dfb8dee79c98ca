package domain

// Status is the work status of a task.
type Status string

const (
	StatusNotStarted Status = "not started"
	StatusInProgress Status = "in progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type Task struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	Status              Status `json:"status" enum:"not started,in progress,done"`
	Approved            bool   `json:"approved"`
	CompletedDetails    string `json:"completedDetails"`
	ToolRecommendations string `json:"toolRecommendations,omitempty"`
	RuleRecommendations string `json:"ruleRecommendations,omitempty"`
}

type Project struct {
	ProjectID     string `json:"projectId"`
	InitialPrompt string `json:"initialPrompt"`
	ProjectPlan   string `json:"projectPlan"`
	Tasks         []Task `json:"tasks"`
	Completed     bool   `json:"completed"`
	AutoApprove   bool   `json:"autoApprove"`
}

// TaskIndex returns the position of the task with the given id, or -1.
func (p *Project) TaskIndex(taskID string) int {
	for i := range p.Tasks {
		if p.Tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}

// Summary counts tasks by progress.
func (p Project) Summary() Summary {
	s := Summary{Total: len(p.Tasks)}
	for _, t := range p.Tasks {
		if t.Status == StatusDone {
			s.Done++
		}
		if t.Approved {
			s.Approved++
		}
	}
	return s
}

type Summary struct {
	Total    int `json:"totalTasks"`
	Done     int `json:"completedTasks"`
	Approved int `json:"approvedTasks"`
}

// Collection is the whole store as handed to and from the repository.
type Collection struct {
	Projects []Project `json:"projects"`
}

// ProjectIndex returns the position of the project with the given id, or -1.
func (c *Collection) ProjectIndex(projectID string) int {
	for i := range c.Projects {
		if c.Projects[i].ProjectID == projectID {
			return i
		}
	}
	return -1
}

// FindTask locates a task anywhere in the collection.
func (c *Collection) FindTask(taskID string) (projectIdx, taskIdx int) {
	for i := range c.Projects {
		if j := c.Projects[i].TaskIndex(taskID); j >= 0 {
			return i, j
		}
	}
	return -1, -1
}

// Clone returns a deep copy of the collection.
func (c *Collection) Clone() *Collection {
	out := &Collection{Projects: make([]Project, len(c.Projects))}
	for i, p := range c.Projects {
		p.Tasks = append([]Task(nil), p.Tasks...)
		out.Projects[i] = p
	}
	return out
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
