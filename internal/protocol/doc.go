// Package protocol implements the MultiChat wire format: the chat event
// model, the frame codec, and the stream reassembler that rebuilds frame
// boundaries from arbitrarily chunked transport reads.
//
// A frame is a single line of text:
//
//	@type:<TAG>|@issuer:<ISSUER>|@payload:<PAYLOAD>|\n
//
// Field values are escaped so that the separator and the terminator never
// appear unescaped inside them.
package protocol
