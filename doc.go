// Package orb provides a lightweight in-process publish/subscribe
// message bus for strongly-typed, fixed-layout topic samples.
//
// The core code is in packages 'core' and 'device', the user-facing
// facade is package 'bus', and some command-line tools are in `cmd`.
//
// See https://github.com/Comcast/orb/blob/master/README.md for more.
package orb
