package advisory

import (
	"context"
	"strings"
	"sync"

	"github.com/sweetpotato0/agri-advisor/gateway"
)

// Prompt kinds recognised by ScriptedGenerator.
const (
	KindExtraction = "extraction"
	KindValidation = "validation"
	KindTruthCheck = "truthcheck"
	KindVision     = "vision"
	KindAdvice     = "advice"
	KindAnalysis   = "analysis"
)

var kindMarkers = []struct{ kind, marker string }{
	{KindExtraction, "pull out structured facts"},
	{KindValidation, "You screen messages"},
	{KindTruthCheck, "You compare what a farmer says"},
	{KindVision, "looking at a photo"},
	{KindAdvice, "senior agronomist"},
	{KindAnalysis, "planning the next season"},
}

// KindOf identifies which prompt a request was rendered from.
func KindOf(req gateway.Request) string {
	for _, km := range kindMarkers {
		if strings.Contains(req.System, km.marker) {
			return km.kind
		}
	}
	return ""
}

// ScriptedGenerator answers each prompt kind with a canned reply. Kinds
// without a reply fail with Err, or a plain backend error.
type ScriptedGenerator struct {
	Replies map[string]string
	Err     error
	Backend string

	mu       sync.Mutex
	requests []gateway.Request
}

func (s *ScriptedGenerator) Generate(_ context.Context, req gateway.Request) gateway.Result {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	name := s.Backend
	if name == "" {
		name = "scripted"
	}
	if reply, ok := s.Replies[KindOf(req)]; ok && s.Err == nil {
		return gateway.Result{Text: reply, Backend: name, Attempts: 1}
	}
	err := s.Err
	if err == nil {
		err = errUnscripted
	}
	return gateway.Result{Backend: name, Attempts: 1, Err: err}
}

// Requests returns the requests of one kind, or all when kind is empty.
func (s *ScriptedGenerator) Requests(kind string) []gateway.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []gateway.Request
	for _, r := range s.requests {
		if kind == "" || KindOf(r) == kind {
			out = append(out, r)
		}
	}
	return out
}
