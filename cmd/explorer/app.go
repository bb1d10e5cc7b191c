package main

import (
	"fmt"

	"asmexplorer/internal/compiler"
	"asmexplorer/internal/config"
	"asmexplorer/internal/service"
	"asmexplorer/internal/store"
	"asmexplorer/internal/tactile"
	"asmexplorer/internal/workspace"
)

// app is the service graph built from one configuration.
type app struct {
	svc        *service.Service
	workspaces *workspace.Manager
	store      *store.ResultStore
}

func newApp(c *config.Config) (*app, error) {
	policy, err := c.OptionsPolicy()
	if err != nil {
		return nil, err
	}

	workspaces := workspace.NewManager(c.Workspace.Root, c.Workspace.Prefix)
	executor := tactile.NewDirectExecutorWithConfig(c.ExecutorConfig())
	env, err := compiler.NewEnvironment(c.CompilerSettings(), workspaces, executor, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to build compile environment: %w", err)
	}

	var rs *store.ResultStore
	if c.Cache.PersistPath != "" {
		if rs, err = store.Open(c.Cache.PersistPath); err != nil {
			return nil, err
		}
	}

	svc, err := service.New(env, service.Options{
		MaxConcurrent: c.Limits.MaxConcurrentCompiles,
		CacheBytes:    c.Limits.CacheBytes,
		Store:         rs,
	}, c.Compilers)
	if err != nil {
		if rs != nil {
			rs.Close()
		}
		return nil, err
	}

	return &app{svc: svc, workspaces: workspaces, store: rs}, nil
}

func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
