//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// EnhancedErrors keeps internal packages on the errors builder so failures
// carry a component and category.
func EnhancedErrors(m dsl.Matcher) {
	m.Import("github.com/sigscope/sigscope/internal/errors")

	m.Match(`fmt.Errorf($format, $*args)`).
		Where(m.File().PkgPath.Matches(`/internal/(session|inspector|saver|audio|analyzer)`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("use errors.Newf($format, $args).Component(...).Category(...).Build()")
}

// StructuredLogging flags formatted log messages; use logger fields.
func StructuredLogging(m dsl.Matcher) {
	m.Match(`$log.$method(fmt.Sprintf($*_), $*_)`).
		Where(m["log"].Type.Implements("github.com/sigscope/sigscope/internal/logger.Logger") &&
			m["method"].Text.Matches(`^(Trace|Debug|Info|Warn|Error)$`)).
		Report("pass values as logger fields instead of formatting the message")

	m.Match(`log.Printf($*_)`, `log.Println($*_)`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("use the module logger from logger.Global().Module(...)")
}

// BlockingPublish flags publishes that bypass the non-blocking bus API.
func BlockingPublish(m dsl.Matcher) {
	m.Match(`$ch <- $ev`).
		Where(m["ev"].Type.Implements("github.com/sigscope/sigscope/internal/events.Event") &&
			!m.File().PkgPath.Matches(`/internal/events$`)).
		Report("publish events through TryPublish so a slow consumer never blocks the sender")
}
