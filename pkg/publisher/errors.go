// Package publisher binds the agent session, the sources and the mixer: it
// discovers products on every connect and answers price schedule
// notifications with update_price.
package publisher

import "errors"

var (
	// ErrNoProducts indicates that none of the configured symbols is offered by the agent.
	ErrNoProducts = errors.New("no configured symbol in product list")
	// ErrSubscribe indicates that a price schedule subscription could not be established.
	ErrSubscribe = errors.New("subscribe failed")
	// ErrNoSources indicates a publisher built without sources.
	ErrNoSources = errors.New("no sources configured")
)
