// Package protocol implements the stream-protocol adapter: it turns decoded
// stream frames into timed writes on the audio buffer and tracks the
// connection's lifecycle state. The wire protocol itself, demuxing, and
// network I/O are external — this package consumes a decoded-frame stream
// through the FrameSource interface and never opens a socket.
package protocol
