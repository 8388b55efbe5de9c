// Package core implements topic nodes: the per-(topic,instance)
// objects that own a fixed-size ring of published samples, track each
// subscriber's read generation, and wake poll waiters on publication.
//
// A Node is driven through the file-like surface in package 'device'
// and the user-facing facade in package 'bus'.  All mutable node state
// sits behind one mutex per node.
package core
