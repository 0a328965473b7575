package middleware

import (
	"context"

	"github.com/sweetpotato0/agri-advisor/advisory"
)

// Context carries one advisory call through the middleware chain.
type Context struct {
	// Client identifies the caller, e.g. a remote address or session ID.
	Client string

	// SessionID is set when the call belongs to a farmer session.
	SessionID string

	// Request is the pipeline request; middlewares may enrich it.
	Request advisory.Request

	// Response is set by the final handler.
	Response *advisory.Response

	// Metadata for passing data between middlewares
	Metadata map[string]any

	context context.Context
}

// NewContext creates a new middleware context
func NewContext(ctx context.Context, req advisory.Request) *Context {
	return &Context{
		Request:  req,
		Metadata: make(map[string]any),
		context:  ctx,
	}
}

// Context returns the underlying context.Context
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// WithContext replaces the underlying context.Context.
func (c *Context) WithContext(ctx context.Context) {
	c.context = ctx
}

// Middleware intercepts an advisory call. Returning an error stops the chain.
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string

	// Execute runs the middleware logic and calls next to continue the chain.
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware
type Handler func(*Context) error

// Func adapts a function to Middleware.
type Func struct {
	name string
	fn   func(*Context, Handler) error
}

// NewFunc creates a named middleware from fn.
func NewFunc(name string, fn func(*Context, Handler) error) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Execute(ctx *Context, next Handler) error { return f.fn(ctx, next) }

// Chain represents a sequence of middleware to be executed
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Add appends a middleware to the chain
func (c *Chain) Add(m Middleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Names lists the middlewares in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.middlewares))
	for i, m := range c.middlewares {
		names[i] = m.Name()
	}
	return names
}

// Execute runs all middlewares in the chain and then final.
func (c *Chain) Execute(ctx *Context, final Handler) error {
	return c.execute(ctx, 0, final)
}

func (c *Chain) execute(ctx *Context, index int, final Handler) error {
	if index >= len(c.middlewares) {
		return final(ctx)
	}
	next := func(ctx *Context) error {
		return c.execute(ctx, index+1, final)
	}
	return c.middlewares[index].Execute(ctx, next)
}

// RunPipeline returns the final handler that runs p and stores the response.
func RunPipeline(p *advisory.Pipeline) Handler {
	return func(ctx *Context) error {
		resp, err := p.Run(ctx.Context(), ctx.Request)
		ctx.Response = &resp
		return err
	}
}
