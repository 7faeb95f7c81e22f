//go:build ruleguard

// Package gorules holds ruleguard checks run by golangci-lint.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo prefers sync.WaitGroup.Go over Add/Done pairs.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }()").
		Suggest("$wg.Go(func() { $*_ })")

	m.Match(`$wg.Add(1)`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("consider $wg.Go(), it calls Add(1) itself")
}

// MinMaxBuiltin flags float round trips through math.Min and math.Max.
func MinMaxBuiltin(m dsl.Matcher) {
	m.Match(`int(math.Min(float64($a), float64($b)))`).
		Report("use min($a, $b)").
		Suggest("min($a, $b)")

	m.Match(`int(math.Max(float64($a), float64($b)))`).
		Report("use max($a, $b)").
		Suggest("max($a, $b)")
}

// RangeOverInt prefers range over an integer for counted loops.
func RangeOverInt(m dsl.Matcher) {
	m.Match(`for $i := 0; $i < $n; $i++ { $*body }`).
		Where(m["n"].Type.Is("int") && m["i"].Text != "_").
		Report("use for $i := range $n")
}

// TestContext prefers t.Context() in tests.
func TestContext(m dsl.Matcher) {
	m.Match(`$ctx, $cancel := context.WithCancel(context.Background())`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("derive $ctx from t.Context() instead of context.Background()")
}

// TimerInLoop flags time.After inside select loops, which leaks a timer per iteration.
func TimerInLoop(m dsl.Matcher) {
	m.Match(`for { select { case <-time.After($d): $*_ } }`).
		Report("time.After in a loop allocates a timer per iteration; use a time.Ticker or reuse a time.Timer")
}
