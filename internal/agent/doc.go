// Package agent runs collections on a remote machine. The agent serves a websocket endpoint that scans
// repositories inside its workspace; the coordinator side Client implements collect.Scanner over that connection.
//
// Messages are JSON envelopes {type, payload}. The coordinator sends scan and cancel requests and pings; the agent
// answers with result, error and pong messages keyed by the request id.
package agent
