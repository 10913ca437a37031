// Package velum keeps a local folder synchronized across independent devices
// through a passive shared transport: any external replicator (Dropbox-style)
// that mirrors a folder between machines. The engine never talks to a network
// itself, it only observes the shared folder.
//
// Synced content is confidential on the transport: file bodies are stored as
// authenticated-encrypted blobs keyed by content digest, so nodes without the
// pre-shared key see only ciphertext. Each node keeps an append-only event
// log of path changes in the shared folder; conflicts are resolved after the
// fact by comparing sequence values across all logs (last writer wins), with
// no central coordinator.
//
// Basic usage:
//
//	key, _ := cryptobox.DecodeKey(sharedSecret)
//	s, _ := velum.New("node-a", "/home/me/Sync", "/home/me/Dropbox", key)
//	if err := s.Start(); err != nil { ... }
//	defer s.RequestExit()
//
// Shared folder layout, under <cloudRoot>/.velum:
//
//	cache/<digest>.fer   one encrypted blob per unique content digest
//	fsdb/<node-id>.db    one append-only event log per node
//	miv/                 persisted sequence-counter state
//
// Deletions propagate as tombstone records and are applied by moving the
// local file into a recoverable trash folder, never by permanent erase.
package velum
