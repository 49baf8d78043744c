// Package security describes the security half of a connection profile: the
// authentication mode, pairwise and group ciphers, static WEP keys and the
// key material records carried by set-key and remove-key commands.
//
// Key material is always copied into the command that installs it and zeroed
// when that command is released, so callers may reuse their buffers as soon as
// SetKey returns.
package security
