// Package banned manages the banned-customer list consulted by the clean
// master build.
//
// The list lives in PostgreSQL; the active list is named by the
// banned_list_id application property. Service satisfies exclusion.Source so
// a build can load it once per invocation through exclusion.Cache.
package banned
