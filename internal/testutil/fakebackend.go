package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"tasksync/internal/service"
)

// CreateCall records one POST to the create endpoint.
type CreateCall struct {
	Name        string
	CSRFToken   string
	Idempotency string
}

// FakeBackend emulates the task REST API under /tasks/ on an httptest server.
// It also serves the root document and a few static assets.
type FakeBackend struct {
	Server *httptest.Server

	mu     sync.Mutex
	tasks  []service.Task
	nextID int
	calls  []CreateCall
	fail   map[string]int
	down   bool
}

// NewFakeBackend starts a fake backend that is closed with the test.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	b := &FakeBackend{nextID: 1, fail: make(map[string]int)}

	r := chi.NewRouter()
	r.Use(b.gate)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<h1>Tasks</h1>"))
	})
	r.Head("/", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/static/tasks/{file}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("static:" + chi.URLParam(r, "file")))
	})
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<h1>Tasks</h1>"))
		})
		r.Get("/api/tasks/", b.list)
		r.Post("/api/tasks/create/", b.create)
		r.Delete("/api/tasks/delete/{id}/", b.delete)
	})

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the server origin.
func (b *FakeBackend) URL() string {
	return b.Server.URL
}

// FailName makes creates of name answer with status.
func (b *FakeBackend) FailName(name string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[name] = status
}

// Heal removes all injected create failures.
func (b *FakeBackend) Heal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = make(map[string]int)
}

// SetDown makes every request fail with 503 while down is true.
func (b *FakeBackend) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

// AddTask seeds a task.
func (b *FakeBackend) AddTask(name string) service.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.add(name)
}

func (b *FakeBackend) add(name string) service.Task {
	t := service.Task{ID: strconv.Itoa(b.nextID), Name: name}
	b.nextID++
	b.tasks = append(b.tasks, t)
	return t
}

// Tasks returns a copy of the stored tasks.
func (b *FakeBackend) Tasks() []service.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]service.Task, len(b.tasks))
	copy(out, b.tasks)
	return out
}

// Names returns the stored task names in order.
func (b *FakeBackend) Names() []string {
	var names []string
	for _, t := range b.Tasks() {
		names = append(names, t.Name)
	}
	return names
}

// Calls returns every create request received, including failed ones.
func (b *FakeBackend) Calls() []CreateCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]CreateCall, len(b.calls))
	copy(out, b.calls)
	return out
}

func (b *FakeBackend) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		down := b.down
		b.mu.Unlock()
		if down {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type wireTask struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

func toWire(t service.Task) wireTask {
	id, _ := strconv.Atoi(t.ID)
	return wireTask{ID: id, Name: t.Name, Completed: t.Completed}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (b *FakeBackend) list(w http.ResponseWriter, r *http.Request) {
	out := []wireTask{}
	for _, t := range b.Tasks() {
		out = append(out, toWire(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *FakeBackend) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Task string `json:"task"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Task == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Task content not provided."})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, CreateCall{
		Name:        body.Task,
		CSRFToken:   r.Header.Get("X-CSRFToken"),
		Idempotency: r.Header.Get("X-Idempotency-Key"),
	})
	if status, ok := b.fail[body.Task]; ok {
		writeJSON(w, status, map[string]string{"error": "injected failure"})
		return
	}
	t := b.add(body.Task)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Task added successfully",
		"task":    map[string]any{"id": toWire(t).ID, "name": t.Name},
	})
}

func (b *FakeBackend) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, t := range b.tasks {
		if t.ID == id {
			b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully."})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found."})
}
