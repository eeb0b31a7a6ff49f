package habit

import "time"

type Habit struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Frequency   string    `json:"frequency"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type HabitInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Frequency   string `json:"frequency"`
}

// LogEntry is one tracked day for a habit.
type LogEntry struct {
	ID        string    `json:"id"`
	HabitID   string    `json:"habit_id"`
	Date      string    `json:"date"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
}

type LogInput struct {
	Date string `json:"date"`
	Done bool   `json:"done"`
}
