// Package tlsroots provides TLS material for the control API.
//
//   - Pool: trusted roots for the control client (system roots plus an
//     optional CA file)
//   - CertReloader: the control server's key pair, reloaded when either
//     file changes on disk
package tlsroots
