// Package stages holds the built-in pipeline stages.
package stages

import (
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
)

// RegisterBuiltins adds every built-in stage to reg.
func RegisterBuiltins(reg *pipeline.Registry) error {
	builtins := map[string]pipeline.StageFactory{
		pipeline.StageWhitelistCheck:     func() ports.Stage { return NewWhitelistCheck() },
		pipeline.StageContentSafetyCheck: func() ports.Stage { return NewContentSafetyCheck() },
		pipeline.StageRateLimit:          func() ports.Stage { return NewRateLimit() },
		pipeline.StageSessionStatusCheck: func() ports.Stage { return NewSessionStatusCheck() },
		pipeline.StageWakingCheck:        func() ports.Stage { return NewWakingCheck() },
		pipeline.StageProcess:            func() ports.Stage { return NewProcess() },
		pipeline.StageResultDecorate:     func() ports.Stage { return NewResultDecorate() },
		pipeline.StageRespond:            func() ports.Stage { return NewRespond() },
	}
	for _, name := range pipeline.DefaultOrder {
		if err := reg.Register(name, builtins[name]); err != nil {
			return err
		}
	}
	return nil
}
