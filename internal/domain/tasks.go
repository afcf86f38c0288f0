package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task is reference data describing one step of the customer checklist.
type Task struct {
	Entity
	Name        string       `json:"name"`
	Category    TaskCategory `json:"category"`
	Order       int          `json:"order"`
	ActiveFrom  *time.Time   `json:"active_from,omitempty"`
	ActiveTo    *time.Time   `json:"active_to,omitempty"`
	State       string       `json:"state,omitempty"`
	PartnerSlug string       `json:"partner_slug,omitempty"`
	Editable    bool         `json:"editable"`
}

// IsActiveAt reports whether now falls inside the task's active window.
func (t *Task) IsActiveAt(now time.Time) bool {
	if t.ActiveFrom != nil && now.Before(*t.ActiveFrom) {
		return false
	}
	if t.ActiveTo != nil && !now.Before(*t.ActiveTo) {
		return false
	}
	return true
}

// TaskDependency says TaskID cannot be worked until DependsOnID is Completed.
type TaskDependency struct {
	Entity
	TaskID      uuid.UUID `json:"task_id"`
	DependsOnID uuid.UUID `json:"depends_on_id"`
}

type TaskStatus struct {
	Entity
	ApplicationID uuid.UUID    `json:"application_id"`
	TaskID        uuid.UUID    `json:"task_id"`
	Category      TaskCategory `json:"category"`
	Status        TaskProgress `json:"status"`
}

// AreAllTasksComplete holds when every status other than homeward-mortgage
// is Completed.
func AreAllTasksComplete(statuses []TaskStatus) bool {
	for _, s := range statuses {
		if s.Category == TaskHomewardMortgage {
			continue
		}
		if s.Status != ProgressCompleted {
			return false
		}
	}
	return true
}

// IsActionable reports whether every prerequisite of taskID is Completed on
// the same application.
func IsActionable(taskID uuid.UUID, deps []TaskDependency, statuses []TaskStatus) bool {
	byTask := make(map[uuid.UUID]TaskProgress, len(statuses))
	for _, s := range statuses {
		byTask[s.TaskID] = s.Status
	}
	for _, d := range deps {
		if d.TaskID != taskID {
			continue
		}
		if byTask[d.DependsOnID] != ProgressCompleted {
			return false
		}
	}
	return true
}
