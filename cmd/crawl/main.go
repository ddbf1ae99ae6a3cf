// Package main provides the crawl CLI.
//
// Usage:
//
//	crawl --seed https://example.com/ --maxPages 100 --workers 16
//	crawl --config crawl.yaml --sqlite index.db
//
// See --help for all available options.
package main

func main() {
	Execute()
}
