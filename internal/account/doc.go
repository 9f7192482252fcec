// Package account defines the fixed-width values the record store works
// with: 20-byte addresses, 32-byte ciphertext words and 256-bit nonces.
//
// Text forms are hex for addresses and words, decimal for nonces. Words
// shorter than 32 bytes are left-padded with zeros when parsed.
package account
