// Package vmsg provides the building blocks of an identity-addressed
// secure messaging protocol.
//
// Parties are named by verifiable identifiers (VIDs) that resolve to a
// public signing key, a public encryption key and a transport address.
// Messages travel as signed, encrypted envelopes, either point-to-point or
// relayed through intermediate hops using nested envelopes so relays never
// see payloads meant for later hops. The Node type ties the identifier
// store, resolver, sealing engine, routing engine and transport together
// into the surface applications consume.
package vmsg
