// Package config loads runtime configuration for the Arctic Chat CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config (or $ARCTIC_CONFIG).
//  3. Environment variables prefixed with ARCTIC_CLIENT_.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-a string   address:port of the backend gRPC endpoint
//	-t string   access token issued by the identity provider
//	-k string   path of the age identity file
//	-d string   path of the local SQLite database
//	-i int      online status check interval (seconds)
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "access_token": "eyJ...",
//	  "identity_file": ".arctic/identity.txt",
//	  "local_db": ".arctic/client.db",
//	  "online_check_interval": "3s"
//	}
package config
