// Package protocol implements the chat room wire protocol: the fixed-size
// binary frame, the identities that frames address, and the directory used to
// resolve numeric ids back into identities.
//
// Every frame is exactly MaxMessageSize bytes:
//
//	[int32 recipient][int32 sender][int32 kind][UTF-8 body, NUL padded]
//
// Roster updates replace the body with [int32 update kind]["<id>\0<nickname>"].
package protocol
