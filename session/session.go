package session

import (
	"context"
	"time"

	"github.com/sweetpotato0/agri-advisor/environment"
	"github.com/sweetpotato0/agri-advisor/message"
)

// State represents the state of a session
type State string

const (
	StateActive State = "active"
	StateClosed State = "closed"
)

// Record is the serializable form of a farmer session. Environment is
// fetched once, after the farmer shares a location, and stays fixed until
// it is explicitly refreshed.
type Record struct {
	ID          string                   `json:"id"`
	State       State                    `json:"state"`
	Crop        string                   `json:"crop,omitempty"`
	Location    *environment.Coordinates `json:"location,omitempty"`
	Environment *environment.Context     `json:"environment,omitempty"`
	History     []message.Message        `json:"history"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	if r.Environment != nil {
		env := *r.Environment
		out.Environment = &env
	}
	out.History = message.Clone(r.History)
	return &out
}

// Store defines the interface for session storage backends.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Load(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Exists(ctx context.Context, id string) (bool, error)
}
