// Package `relaysrv` implements line relay server over TCP.
//
// Every line sent by any client is delivered to every connected client.
//
// To compile relay server locally, run from package directory:
//
//	go install .
//
// Or quickly launch server with command:
//
//	go run . -addr 127.0.0.1:5000
//
// Optional WebSocket gateway (-ws-addr) and Redis bridge (-redis-url)
// share the same hub with TCP clients.
package main
