// Package main is the entry point for apigen, a REST API server generated
// from YAML model definitions.
package main

func main() {
	Execute()
}
