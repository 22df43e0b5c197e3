package shiplog

import (
	"context"
	"slices"
	"sync"
)

type scopeKey struct{}

// ScopeStack is the ordered list of active scopes for one logical call
// context. It travels in a context.Context; goroutines that outlive or run
// beside the caller should take their own copy with ForkScope.
type ScopeStack struct {
	mu      sync.Mutex
	entries []*Scope
}

// Scope is the handle for one pushed scope entry
type Scope struct {
	stack *ScopeStack
	state any
	once  sync.Once
}

// BeginScope pushes state onto the context's scope stack, attaching a new
// stack when ctx has none. Close the returned scope on every exit path:
//
//	ctx, scope := shiplog.BeginScope(ctx, shiplog.KV("RequestId", id))
//	defer scope.Close()
func BeginScope(ctx context.Context, state any) (context.Context, *Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	stack := ScopeFromContext(ctx)
	if stack == nil {
		stack = &ScopeStack{}
		ctx = context.WithValue(ctx, scopeKey{}, stack)
	}

	s := &Scope{stack: stack, state: state}
	stack.mu.Lock()
	stack.entries = append(stack.entries, s)
	stack.mu.Unlock()
	return ctx, s
}

// Close pops the scope. Closing twice is a no-op; closing out of order
// removes only this entry.
func (s *Scope) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		st := s.stack
		st.mu.Lock()
		defer st.mu.Unlock()
		for i := len(st.entries) - 1; i >= 0; i-- {
			if st.entries[i] == s {
				st.entries = slices.Delete(st.entries, i, i+1)
				return
			}
		}
	})
}

// State returns the value pushed by BeginScope
func (s *Scope) State() any {
	return s.state
}

// ScopeFromContext returns the stack carried by ctx, or nil
func ScopeFromContext(ctx context.Context) *ScopeStack {
	if ctx == nil {
		return nil
	}
	stack, _ := ctx.Value(scopeKey{}).(*ScopeStack)
	return stack
}

// ForkScope returns a context carrying an independent copy of the current
// stack. Scopes begun on the fork do not affect the parent.
func ForkScope(ctx context.Context) context.Context {
	parent := ScopeFromContext(ctx)
	fork := &ScopeStack{}
	if parent != nil {
		parent.mu.Lock()
		for _, s := range parent.entries {
			fork.entries = append(fork.entries, &Scope{stack: fork, state: s.state})
		}
		parent.mu.Unlock()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeKey{}, fork)
}

// Snapshot returns active scope states from outermost to innermost
func (st *ScopeStack) Snapshot() []any {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.entries) == 0 {
		return nil
	}
	states := make([]any, len(st.entries))
	for i, s := range st.entries {
		states[i] = s.state
	}
	return states
}

// Len returns the number of active scopes
func (st *ScopeStack) Len() int {
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}
