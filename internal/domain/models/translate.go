package models

// ToTask translates a stored row into the API shape. Deadline parts default
// to "" while FormattedDeadline keeps its null.
func (r TaskRecord) ToTask() Task {
	return Task{
		ID:        r.ID,
		UserID:    r.UserID,
		Text:      r.Text,
		Completed: r.Completed == 1,
		Priority:  r.Priority,
		Deadline: Deadline{
			Day:   valueOrEmpty(r.DeadlineDay),
			Month: valueOrEmpty(r.DeadlineMonth),
			Year:  valueOrEmpty(r.DeadlineYear),
		},
		FormattedDeadline: r.FormattedDeadline,
		View:              r.View,
		Date:              r.CreatedAt,
	}
}

func ToTasks(records []TaskRecord) []Task {
	tasks := make([]Task, 0, len(records))
	for _, r := range records {
		tasks = append(tasks, r.ToTask())
	}
	return tasks
}

func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NullIfEmpty maps "" to nil, the way create stores absent optional text.
func NullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
