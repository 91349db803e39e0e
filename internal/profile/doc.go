// Package profile captures profile pages, summarizes them with a vision
// model, and appends the results to a shared JSON output file.
package profile
