// Package aggregator blends per-source prices into one weighted price with a derived confidence.
package aggregator

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSymbol indicates that no weighting is configured for the symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrUnknownProvider indicates a weighting or conversion that names an unregistered source.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMissingPrice indicates that a weighted source has no reading for the symbol yet.
	ErrMissingPrice = errors.New("missing price")
	// ErrMissingConversion indicates that the conversion price of a re-denominated source is missing.
	ErrMissingConversion = fmt.Errorf("%w: conversion", ErrMissingPrice)
	// ErrInvalidWeight indicates a negative weight or a weighting whose sum is not positive.
	ErrInvalidWeight = errors.New("invalid weight")
	// ErrOverflow indicates a scaled value that does not fit the wire representation.
	ErrOverflow = errors.New("scaled value out of range")
)
