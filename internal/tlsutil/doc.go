// Package tlsutil provides a centralized, hardened TLS configuration
// (TLS 1.2+, AEAD cipher suites only) shared by every outbound
// upstream HTTP client.
package tlsutil
