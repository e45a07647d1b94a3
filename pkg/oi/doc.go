// Package oi provides the host side of an Open Interface serial link.
//
// The link is a point-to-point byte stream between the host and the
// robot's command processor. Bytes arrive asynchronously from the
// transport in bursts of any size and are queued in a ByteBuffer;
// callers read them back synchronously one byte or one word at a time.
//
// Before a Link can be used it must be connected: the start command is
// sent and the robot is polled for its operating mode until it reports
// passive mode.
//
// Words are 16-bit values sent high byte first.
package oi
