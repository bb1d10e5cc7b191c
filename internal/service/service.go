// Package service is the entry point for compile requests. It resolves the
// compiler, rejects bad requests early, answers repeats from cache and
// admits the rest through a bounded queue.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"asmexplorer/internal/admission"
	"asmexplorer/internal/cache"
	"asmexplorer/internal/compiler"
	"asmexplorer/internal/logging"
	"asmexplorer/internal/store"
)

var (
	// ErrUnknownCompiler is returned for a compiler id that is not registered.
	ErrUnknownCompiler = errors.New("unknown compiler")
	// ErrRemote is returned when the compiler lives on another server.
	ErrRemote = errors.New("compiler is remote")
)

// Options sizes the admission queue and the caches.
type Options struct {
	MaxConcurrent int
	CacheBytes    int64
	// Store is an optional persistent tier consulted after the LRU.
	Store *store.ResultStore
}

// Stats is a snapshot of service state.
type Stats struct {
	Compilers  int             `json:"compilers"`
	Workspaces int             `json:"workspaces"`
	Collapsed  uint64          `json:"collapsed"`
	Queue      admission.Stats `json:"queue"`
	Cache      cache.Stats     `json:"cache"`
	Store      *store.Stats    `json:"store,omitempty"`
}

type registry struct {
	byID  map[string]*compiler.Compiler
	order []string
}

// Service handles compile requests for a set of compilers.
type Service struct {
	env       *compiler.Environment
	queue     *admission.Queue
	cache     *cache.LRU
	store     *store.ResultStore
	flight    singleflight.Group
	compilers atomic.Pointer[registry]

	collapsed atomic.Uint64
}

// New builds a service over env serving descs.
func New(env *compiler.Environment, opts Options, descs []compiler.Descriptor) (*Service, error) {
	s := &Service{
		env:   env,
		queue: admission.NewQueue(opts.MaxConcurrent),
		cache: cache.New(opts.CacheBytes),
		store: opts.Store,
	}
	if err := s.SetCompilers(descs); err != nil {
		return nil, err
	}
	return s, nil
}

// SetCompilers replaces the registry. Jobs already running keep the
// compiler they started with.
func (s *Service) SetCompilers(descs []compiler.Descriptor) error {
	reg := &registry{byID: make(map[string]*compiler.Compiler, len(descs))}
	for _, d := range descs {
		if d.ID == "" {
			return fmt.Errorf("compiler without id")
		}
		if _, dup := reg.byID[d.ID]; dup {
			return fmt.Errorf("duplicate compiler id %q", d.ID)
		}
		if d.Exe == "" && d.Remote == "" {
			return fmt.Errorf("compiler %q has neither exe nor remote", d.ID)
		}
		reg.byID[d.ID] = compiler.New(d, s.env)
		reg.order = append(reg.order, d.ID)
	}
	s.compilers.Store(reg)
	logging.Compile("Registered %d compilers", len(descs))
	return nil
}

// Compilers lists registered descriptors in registration order.
func (s *Service) Compilers() []compiler.Descriptor {
	reg := s.compilers.Load()
	out := make([]compiler.Descriptor, 0, len(reg.order))
	for _, id := range reg.order {
		out = append(out, reg.byID[id].Descriptor())
	}
	return out
}

// Lookup returns the descriptor registered under id.
func (s *Service) Lookup(id string) (compiler.Descriptor, bool) {
	c, ok := s.compilers.Load().byID[id]
	if !ok {
		return compiler.Descriptor{}, false
	}
	return c.Descriptor(), true
}

// Remote returns the remote endpoint for id, if that compiler is remote.
func (s *Service) Remote(id string) (string, bool) {
	d, ok := s.Lookup(id)
	if !ok || !d.IsRemote() {
		return "", false
	}
	return d.Remote, true
}

// Remotes returns every remote endpoint keyed by compiler id.
func (s *Service) Remotes() map[string]string {
	out := make(map[string]string)
	for _, d := range s.Compilers() {
		if d.IsRemote() {
			out[d.ID] = d.Remote
		}
	}
	return out
}

// FindBadOptions returns the options the policy rejects.
func (s *Service) FindBadOptions(options []string) []string {
	return s.env.Options().FindBadOptions(options)
}

// Submit compiles req, or returns a cached result for an identical earlier
// request. Validation failures are returned before anything touches the
// filesystem.
func (s *Service) Submit(ctx context.Context, req compiler.Request) (*compiler.Result, error) {
	c, ok := s.compilers.Load().byID[req.CompilerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompiler, req.CompilerID)
	}
	if c.Descriptor().IsRemote() {
		return nil, fmt.Errorf("%w: %s", ErrRemote, req.CompilerID)
	}

	req.Filters = c.EffectiveFilters(req.Filters)
	if err := s.env.Validate(req.Source, req.Options); err != nil {
		return nil, err
	}

	key := Fingerprint(req)
	if res, ok := s.lookup(ctx, key); ok {
		return res, nil
	}

	ch := s.flight.DoChan(key, func() (interface{}, error) {
		return s.compile(context.WithoutCancel(ctx), c, key, req)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			s.collapsed.Add(1)
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*compiler.Result), nil
	}
}

func (s *Service) compile(ctx context.Context, c *compiler.Compiler, key string, req compiler.Request) (*compiler.Result, error) {
	if res, ok := s.lookup(ctx, key); ok {
		return res, nil
	}

	var res *compiler.Result
	err := s.queue.Run(ctx, func(ctx context.Context) error {
		var err error
		res, err = c.Compile(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.OkToCache {
		s.remember(ctx, key, req.CompilerID, res)
	}
	return res, nil
}

// lookup checks the LRU, then the persistent store. A store hit is
// promoted into the LRU.
func (s *Service) lookup(ctx context.Context, key string) (*compiler.Result, bool) {
	if data, ok := s.cache.Get(key); ok {
		if res, err := decode(data); err == nil {
			logging.CacheDebug("Memory hit %s", key)
			return res, true
		}
	}
	if s.store == nil {
		return nil, false
	}
	data, ok, err := s.store.Get(ctx, key)
	if err != nil {
		logging.CacheWarn("Store lookup failed for %s: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	res, err := decode(data)
	if err != nil {
		logging.CacheWarn("Discarding unreadable stored result %s: %v", key, err)
		return nil, false
	}
	s.cache.Put(key, data)
	logging.CacheDebug("Store hit %s", key)
	return res, true
}

func (s *Service) remember(ctx context.Context, key, compilerID string, res *compiler.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		logging.CacheWarn("Unable to serialise result for %s: %v", key, err)
		return
	}
	s.cache.Put(key, data)
	if s.store != nil {
		if err := s.store.Put(ctx, key, compilerID, data); err != nil {
			logging.CacheWarn("Store write failed for %s: %v", key, err)
		}
	}
}

func decode(data []byte) (*compiler.Result, error) {
	var res compiler.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Stats returns current counters.
func (s *Service) Stats(ctx context.Context) Stats {
	st := Stats{
		Compilers:  len(s.compilers.Load().order),
		Workspaces: s.env.Workspaces().Active(),
		Collapsed:  s.collapsed.Load(),
		Queue:      s.queue.Stats(),
		Cache:      s.cache.Stats(),
	}
	if s.store != nil {
		if ss, err := s.store.Stats(ctx); err == nil {
			st.Store = &ss
		}
	}
	return st
}

// PruneStore drops persisted results not read within maxAge.
func (s *Service) PruneStore(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	return s.store.Prune(ctx, time.Now().Add(-maxAge))
}
