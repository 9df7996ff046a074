// Package domain holds the value types shared by the importers, the
// clean-master builder, the build-state stores and the HTTP layer: order
// rows, platforms, build phases and persisted build state, and banned
// customer entries.
//
// Nothing here talks to a database or the network, and the package imports
// no other internal package. Enums, constants, JSON tags and pure
// validation helpers are fine.
package domain
