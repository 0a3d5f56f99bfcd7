// Package config defines the configuration of a peerd agent.
//
// Whether peerd is embedded in Go code or started from the command line, the
// Config object defined in this package carries every option. The agent also
// relies on a data directory, Config.DataDir, where it looks for:
//
//  priv_key // a plain text file containing the hex private key (cf. peerd keygen).
//  seeds.json // (optional) the seed peers used to bootstrap the agent.
//  peerd.toml // (optional) a configuration file, reloaded when it changes.
package config
