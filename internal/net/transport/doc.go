// Package transport moves raw datagrams between slots and the game server.
//
// Each slot owns one socket so the server sees independent connections.
// Inbound datagrams from every slot are merged into one bounded channel,
// each tagged with the slot it arrived on. UDP is the production adapter;
// Memory is an in-process adapter for tests and local tooling.
package transport
