package registry

import (
	"time"

	"github.com/raidwatch/raidwatch/internal/engine"
	"github.com/raidwatch/raidwatch/internal/games/eternalcity"
	"github.com/raidwatch/raidwatch/internal/metrics"
	"github.com/raidwatch/raidwatch/internal/notify"
)

// Deps are the shared collaborators handed to every built-in handler.
type Deps struct {
	Notifier         notify.Notifier
	Metrics          metrics.Collector
	InvasionDebounce time.Duration
	// Webhooks holds the initial webhook target per manager id.
	Webhooks map[string]notify.Target
}

// Builtin returns the catalog of games this build supports.
func Builtin(deps Deps) []ManagerConfig {
	return []ManagerConfig{
		{
			ID:              eternalcity.Domain,
			Label:           "Eternal City Manager",
			ProcessKeywords: []string{"city.exe", "eternalcity", "eternal", "city"},
			PluginPath:      "plugins/eternal_city_parser.py",
			NewHandler: func() engine.Handler {
				return eternalcity.New(
					eternalcity.WithNotifier(deps.Notifier),
					eternalcity.WithMetrics(deps.Metrics),
					eternalcity.WithDebounce(deps.InvasionDebounce),
					eternalcity.WithWebhook(deps.Webhooks[eternalcity.Domain]),
				)
			},
		},
	}
}

// Default builds a registry from Builtin. It panics if the catalog is
// malformed.
func Default(deps Deps) *Registry {
	r, err := New(Builtin(deps)...)
	if err != nil {
		panic(err)
	}
	return r
}
