package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/reminder"
	"remindbot/internal/task/engine"
	logx "remindbot/pkg/logx"
)

var (
	// ErrDuplicate is returned when an id already has a live handle.
	ErrDuplicate = errors.New("scheduler: duplicate id")
	// ErrNotFound is returned when an id has no live handle.
	ErrNotFound = errors.New("scheduler: no live handle")
)

// MissingError lists ids that had no live handle. It matches ErrNotFound.
type MissingError struct {
	IDs []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("scheduler: no live handle for %s", strings.Join(e.IDs, ", "))
}

func (e *MissingError) Is(target error) bool { return target == ErrNotFound }

// Config controls trigger behaviour. Execution settings live in engine.Config.
type Config struct {
	// FireTimeout bounds one fire callback attempt.
	FireTimeout time.Duration
}

// Executor runs fired jobs. *engine.Service satisfies it.
type Executor interface {
	Enqueue(t engine.Task) error
}

// Job is what runs when a handle fires.
//
// Run may be retried by the executor. Done, if set, runs once after the last
// attempt.
type Job struct {
	Run  func(ctx context.Context) error
	Done func(err error)
}

type handle struct {
	id    string
	spec  reminder.Schedule
	job   Job
	ver   uint64
	timer *time.Timer

	cronSched cron.Schedule
	entryID   cron.EntryID
}

// Service keeps one handle per reminder id. Handles registered before Start
// are kept and armed when Start runs; Stop disarms them but keeps them.
type Service struct {
	mu sync.Mutex

	cfg  Config
	log  logx.Logger
	exec Executor
	now  func() time.Time

	c       *cron.Cron
	running bool
	handles map[string]*handle
	verSeq  uint64

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

// Entry is a read-only view of one live handle.
type Entry struct {
	ID   string                `json:"id"`
	Kind reminder.ScheduleKind `json:"kind"`
	Spec string                `json:"spec"`
	Next time.Time             `json:"next"`
}

type Snapshot struct {
	Running bool            `json:"running"`
	Handles int             `json:"handles"`
	Entries []Entry         `json:"entries,omitempty"`
	Engine  engine.Snapshot `json:"engine"`
}
