package models

const (
	DefaultPriority = "none"
	DefaultView     = "inbox"

	// TimestampLayout is fixed width so that string order equals time order.
	TimestampLayout = "2006-01-02T15:04:05.000000Z"
)

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Password  string `json:"-"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=100"`
	Name     string `json:"name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Deadline struct {
	Day   string `json:"day"`
	Month string `json:"month"`
	Year  string `json:"year"`
}

// Task is the API shape of a task.
type Task struct {
	ID                string   `json:"id"`
	UserID            string   `json:"-"`
	Text              string   `json:"text"`
	Completed         bool     `json:"completed"`
	Priority          string   `json:"priority"`
	Deadline          Deadline `json:"deadline"`
	FormattedDeadline *string  `json:"formattedDeadline"`
	View              string   `json:"view"`
	Date              string   `json:"date"`
}

// TaskRecord is the persisted row shape of a task.
type TaskRecord struct {
	ID                string
	UserID            string
	Text              string
	Completed         int
	Priority          string
	DeadlineDay       *string
	DeadlineMonth     *string
	DeadlineYear      *string
	FormattedDeadline *string
	View              string
	CreatedAt         string
}

type CreateTaskRequest struct {
	Text              string    `json:"text" validate:"required"`
	Priority          string    `json:"priority"`
	Deadline          *Deadline `json:"deadline"`
	FormattedDeadline string    `json:"formattedDeadline"`
	View              string    `json:"view"`
}

// UpdateTaskRequest carries a partial update. Only fields present in the
// decoded body are applied; see Optional.
type UpdateTaskRequest struct {
	Text              Optional[string] `json:"text,omitzero"`
	Completed         Optional[bool]   `json:"completed,omitzero"`
	Priority          Optional[string] `json:"priority,omitzero"`
	Deadline          *DeadlinePatch   `json:"deadline,omitempty"`
	FormattedDeadline Optional[string] `json:"formattedDeadline,omitzero"`
	View              Optional[string] `json:"view,omitzero"`
}

type DeadlinePatch struct {
	Day   Optional[string] `json:"day,omitzero"`
	Month Optional[string] `json:"month,omitzero"`
	Year  Optional[string] `json:"year,omitzero"`
}
