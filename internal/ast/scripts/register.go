// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scripts

import "github.com/ManuGH/hostgw/internal/ast"

// Deps are the external collaborators of the built-in scripts.
type Deps struct {
	Pending PendingSource
	Report  ReportSource
	Auth    ast.AuthDefaults
}

// RegisterAll registers the built-in scripts in reg.
func RegisterAll(reg *ast.Registry, deps Deps) {
	reg.Register("login", func() ast.Script {
		return &Login{Auth: deps.Auth}
	})
	reg.Register("bi_renew", func() ast.Script {
		return &BiRenew{Pending: deps.Pending, Report: deps.Report, Auth: deps.Auth}
	})
}
