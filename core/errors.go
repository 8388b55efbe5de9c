package core

// These errors are the only kinds the bus surfaces.  Package device
// maps them to errno numbers at the host boundary.

import (
	"errors"
)

var (
	// NotFound indicates an unknown topic or a missing node.
	NotFound = errors.New("no such topic")

	// Invalid indicates a wrong payload size, a nil Meta, or an
	// advertiser without initial data.
	Invalid = errors.New("invalid argument")

	// Permission indicates a write on a subscriber handle.
	Permission = errors.New("operation not permitted")

	// Exists indicates advertising a (topic,instance) that already
	// has an advertiser.  The bus layer treats this as success when
	// adding a second advertiser.
	Exists = errors.New("already advertised")

	// AlreadyStarted indicates a queue resize after the first
	// publish locked the ring.
	AlreadyStarted = errors.New("already started")

	// NoData indicates a copy with nothing new to read.
	NoData = errors.New("no data")

	// ShortIO indicates a short read or write at the host layer.
	ShortIO = errors.New("short i/o")

	// NoMem indicates an allocation failure, including exhaustion
	// of a topic's instance slots.
	NoMem = errors.New("out of memory")
)
