// Package selector maps a query classification to the set of agents to run.
// The rule table below is the single routing authority: no agent is selected
// outside it, and identical inputs always yield identical sets.
package selector

import (
	"github.com/bankerai/orchestrator/internal/agents"
	"github.com/bankerai/orchestrator/internal/classification"
)

// Select returns the ordered agent set for a classification.
//
//	is_finance  has_tickers  has_companies  agents
//	false       -            -              general
//	true        true         -              finance, yahoo, sec, reddit, general
//	true        false        true           finance, reddit, general
//	true        false        false          reddit, general
func Select(c classification.Classification) []agents.AgentID {
	switch {
	case !c.IsFinance:
		return []agents.AgentID{agents.AgentGeneral}
	case c.HasTickers():
		return []agents.AgentID{
			agents.AgentFinance,
			agents.AgentYahoo,
			agents.AgentSEC,
			agents.AgentReddit,
			agents.AgentGeneral,
		}
	case c.HasCompanies():
		return []agents.AgentID{
			agents.AgentFinance,
			agents.AgentReddit,
			agents.AgentGeneral,
		}
	default:
		return []agents.AgentID{agents.AgentReddit, agents.AgentGeneral}
	}
}
