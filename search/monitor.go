package search

import "github.com/geomind/placedex/core"

// SearchMonitor provides hooks to observe strategy resolution.
// Implement this interface to track which strategy served a query and why
// the earlier ones did not.
type SearchMonitor interface {
	Start(q *Query)
	StrategySkipped(name string)
	StrategyFailed(name string, err error)
	StrategyEmpty(name string)
	StrategySelected(name string, resultCount int)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ *Query)                   {}
func (n *noopMonitor) StrategySkipped(_ string)         {}
func (n *noopMonitor) StrategyFailed(_ string, _ error) {}
func (n *noopMonitor) StrategyEmpty(_ string)           {}
func (n *noopMonitor) StrategySelected(_ string, _ int) {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)    {}
