// Package `relaycli` implements interactive client of the line relay.
//
// Each line entered on standard input is sent to the server, every line
// received from the server is printed. Enter "quit" to exit.
//
//	go run . -addr 127.0.0.1:5000
package main
