// Package teamhub implements the control plane of a multi-tenant
// agent-team orchestrator: team and agent lifecycle, chat routing and
// fan-out, heartbeat-based liveness tracking with stall escalation, and
// the in-process surface that the HTTP/WS layer in package serve adapts.
//
// A Team is a tenant-owned runtime: one chat gateway, a shared
// workspace, and one or more agent containers. The LifecycleManager
// drives the team and agent state machines and coordinates the
// ContainerDriver (package container), the ChatClient (package chat),
// the Router, and the Broadcaster. The LivenessTracker watches
// heartbeats and escalates stalled agents. Durable state lives behind
// the TeamStore/TemplateStore interfaces (package store).
package teamhub
