// Package report summarizes an aggregated profile for the terminal.
package report

import (
	"cmp"
	"slices"

	"github.com/danpilch/vmprof/pkg/profile"
	"github.com/danpilch/vmprof/pkg/trace"
)

// FunctionCost is the cost attributed to one function across all paths.
type FunctionCost struct {
	Function string `json:"function"`
	Category string `json:"category"`
	// Self is the cost of paths ending in the function.
	Self uint64 `json:"self"`
	// Total also counts paths passing through it, each path once.
	Total uint64  `json:"total"`
	Share float64 `json:"share"`
}

// CategoryCost is the self cost of all functions in one category.
type CategoryCost struct {
	Category string  `json:"category"`
	Self     uint64  `json:"self"`
	Share    float64 `json:"share"`
}

// Summary describes where the cost of a profile went.
type Summary struct {
	TotalCost  uint64         `json:"total_cost"`
	Paths      int            `json:"paths"`
	Functions  int            `json:"functions"`
	MaxDepth   int            `json:"max_depth"`
	Top        []FunctionCost `json:"top"`
	Categories []CategoryCost `json:"categories"`
	// DepthCost is the self cost landing at each stack depth, root first.
	DepthCost []uint64 `json:"depth_cost"`
}

// Summarize ranks functions by self cost and keeps the top n. n <= 0 keeps
// all of them.
func Summarize(p *profile.Profile, n int) Summary {
	s := Summary{TotalCost: p.Total(), Paths: p.Len()}

	funcs := make(map[trace.FunctionID]*FunctionCost)
	var order []trace.FunctionID
	cats := make(map[trace.Category]uint64)

	for _, e := range p.Entries() {
		if len(e.Path) > s.MaxDepth {
			s.MaxDepth = len(e.Path)
			s.DepthCost = append(s.DepthCost, make([]uint64, len(e.Path)-len(s.DepthCost))...)
		}
		s.DepthCost[len(e.Path)-1] += e.Value

		seen := make(map[trace.FunctionID]bool, len(e.Path))
		for _, id := range e.Path {
			fc, ok := funcs[id]
			if !ok {
				fc = &FunctionCost{Function: id.Name, Category: id.Category.String()}
				funcs[id] = fc
				order = append(order, id)
			}
			if !seen[id] {
				fc.Total += e.Value
				seen[id] = true
			}
		}
		leaf := e.Leaf()
		funcs[leaf].Self += e.Value
		cats[leaf.Category] += e.Value
	}

	s.Functions = len(order)
	all := make([]FunctionCost, 0, len(order))
	for _, id := range order {
		fc := *funcs[id]
		fc.Share = share(fc.Self, s.TotalCost)
		all = append(all, fc)
	}
	// Stable so equal costs keep first-seen order.
	slices.SortStableFunc(all, func(a, b FunctionCost) int {
		return cmp.Compare(b.Self, a.Self)
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	s.Top = all

	for _, c := range []trace.Category{trace.User, trace.Corelib, trace.Libfunc, trace.Synthetic} {
		if v, ok := cats[c]; ok {
			s.Categories = append(s.Categories, CategoryCost{
				Category: c.String(),
				Self:     v,
				Share:    share(v, s.TotalCost),
			})
		}
	}
	return s
}

func share(v, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(v) / float64(total) * 100
}
