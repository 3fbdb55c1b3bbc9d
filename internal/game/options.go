package game

import "agentarena/internal/config"

// OptionsFromConfig maps the environment's simulation knobs onto service
// options.
func OptionsFromConfig(c config.SimConfig) Options {
	return Options{
		Volatility:       c.MarketVolatility,
		SimSpeed:         c.SimSpeed,
		SimulateLatency:  c.SimulateLatency,
		PromptCooldown:   c.PromptCooldown,
		MarketTickEvery:  c.MarketTickEvery,
		SubscriberBuffer: c.SubscriberBuffer,
	}
}
