// Package config defines the configuration for a safe node.
//
// Regardless of how the node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, the node relies on a root directory, defined by Config.RootDir,
// where it keeps its identity and data:
//
//  node_key                     // ed25519 identity key (cf. safenode keygen).
//  node_connection_info.config  // current listen address, for clients to bootstrap from.
//  section_chain.dat            // our signed chain of section keys.
//  prefix_map.dat               // cached SAPs of the sections we know.
//  chunks/ registers/ maps/ sequences/ transfers/  // data stores.
//  badger_db/                   // (optional) persistent chunk-holder metadata.
package config
