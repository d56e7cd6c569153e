// Package main provides the entry point for the ProofPulse CLI.
package main

func main() {
	Execute()
}
