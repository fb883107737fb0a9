// Package main is the entry point for wsgate.
package main

func main() {
	Execute()
}
