package service

// Task represents a single task item.
type Task struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// CreateRequest carries a new task to the backend.
// Ref is the client reference of a replayed queue entry; empty for direct writes.
type CreateRequest struct {
	Name string `validate:"required,max=255"`
	Ref  string `validate:"omitempty,uuid"`
}
