// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import "go.opentelemetry.io/otel/attribute"

// Attribute keys used on gateway spans.
const (
	AttrSessionID   = attribute.Key("session.id")
	AttrExecutionID = attribute.Key("execution.id")
	AttrASTName     = attribute.Key("ast.name")
	AttrExecMode    = attribute.Key("exec.mode")
	AttrItemID      = attribute.Key("item.id")
	AttrItemIndex   = attribute.Key("item.index")
	AttrItemTotal   = attribute.Key("item.total")
	AttrWorker      = attribute.Key("exec.worker")
	AttrStatus      = attribute.Key("exec.status")
)
