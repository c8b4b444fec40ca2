// Package sysactions provides the built-in "system" manager: introspection
// actions served from a fresh per-dispatch call context.
package sysactions

import (
	"fmt"
	"runtime"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/morezero/action-gateway/pkg/action"
	"github.com/morezero/action-gateway/pkg/manager"
)

// ManagerName is the registry name of the system manager.
const ManagerName = "system"

// Call is the per-dispatch resource: scratch state owned exclusively by one
// dispatch call.
type Call struct {
	Started time.Time
	Notes   map[string]string
}

// statsReport is the result of the stats action.
type statsReport struct {
	Protocol   string `json:"protocol"`
	Goroutines int    `json:"goroutines"`
	AllocBytes uint64 `json:"alloc_bytes"`
	Time       string `json:"time"`
}

// versionQuery is the payload for the version action.
type versionQuery struct {
	Constraint string `json:"constraint"`
}

// versionReport is the result of the version action.
type versionReport struct {
	Version    string `json:"version"`
	Constraint string `json:"constraint,omitempty"`
	Satisfied  *bool  `json:"satisfied,omitempty"`
}

// NewManager builds the system manager in factory mode, advertising the given
// protocol version. Each dispatch gets its own Call instance.
func NewManager(protocolVersion string, opts ...manager.Option[*Call]) (*manager.Manager[*Call], error) {
	current, err := semver.NewVersion(protocolVersion)
	if err != nil {
		return nil, fmt.Errorf("sysactions:NewManager - invalid protocol version %q: %w", protocolVersion, err)
	}

	m := manager.NewWithFactory[*Call](ManagerName, func() *Call {
		return &Call{Started: time.Now().UTC(), Notes: map[string]string{}}
	}, opts...)

	m.Register("ping", func(call *Call, act *action.Action) (any, error) {
		return action.Done(), nil
	})

	m.Register("time", func(call *Call, act *action.Action) (any, error) {
		return map[string]string{"time": call.Started.Format(time.RFC3339Nano)}, nil
	})

	m.Register("echo", func(call *Call, act *action.Action) (any, error) {
		return act.Payload, nil
	})

	m.Register("stats", func(call *Call, act *action.Action) (any, error) {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		return action.OK(statsReport{
			Protocol:   current.String(),
			Goroutines: runtime.NumGoroutine(),
			AllocBytes: mem.Alloc,
			Time:       call.Started.Format(time.RFC3339Nano),
		})
	})

	m.Register("version", func(call *Call, act *action.Action) (any, error) {
		q, err := action.FromPayload[versionQuery](act)
		if err != nil {
			return nil, err
		}

		report := versionReport{Version: current.String()}
		if q.Constraint == "" {
			return report, nil
		}

		constraint, err := semver.NewConstraint(q.Constraint)
		if err != nil {
			return nil, action.Errorf("VersionError", "invalid constraint %q: %v", q.Constraint, err)
		}
		ok := constraint.Check(current)
		report.Constraint = q.Constraint
		report.Satisfied = &ok
		return report, nil
	})

	return m, nil
}
