// Package importer pulls orders from the two platform APIs into the raw
// order stores the clean master build reads.
//
// Each platform client flattens orders into one line per line item, with the
// order-level totals repeated on every line. Importer merges those lines into
// a raw store by (order id, line id): lines already present are skipped and
// new ones are appended in a single contiguous write, so overlapping fetch
// windows are harmless.
package importer
