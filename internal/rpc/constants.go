// Package rpc implements the ONC RPC version 2 (RFC 5531) client engine
// shared by the MOUNT and NFS drivers: message framing, AUTH_UNIX/AUTH_DES
// authentication, and the one-shot call/reply exchange over UDP or TCP.
//
// Grounded on the teacher's server-side RPC framing helpers
// (internal/protocol/nlm/callback/client.go builds exactly this kind of
// CALL message to push an NLM callback to a client) and inverted here into
// a general-purpose client that also reads and validates replies.
package rpc

import "time"

// RPC message types (RFC 5531 Section 8).
const (
	MsgCall  uint32 = 0
	MsgReply uint32 = 1
)

// RPC version used by NFSv3/MOUNTv3/portmap (RFC 5531).
const Version2 uint32 = 2

// Reply status (RFC 5531 Section 8).
const (
	ReplyAccepted uint32 = 0
	ReplyDenied   uint32 = 1
)

// Accept status, valid only when ReplyAccepted.
const (
	AcceptSuccess      uint32 = 0
	AcceptProgUnavail  uint32 = 1
	AcceptProgMismatch uint32 = 2
	AcceptProcUnavail  uint32 = 3
	AcceptGarbageArgs  uint32 = 4
	AcceptSystemErr    uint32 = 5
)

// Reject status, valid only when ReplyDenied.
const (
	RejectMismatch uint32 = 0
	RejectAuthErr  uint32 = 1
)

// Authentication flavors (RFC 5531 Section 9, RFC 2695 for AUTH_DES).
const (
	AuthNull     uint32 = 0
	AuthUnix     uint32 = 1
	AuthShort    uint32 = 2
	AuthDES      uint32 = 3
	AuthRPCSECGSS uint32 = 6
)

// Well-known RPC program numbers used by nfsh.
const (
	ProgramPortmap uint32 = 100000
	ProgramNFS     uint32 = 100003
	ProgramMount   uint32 = 100005
)

// Portmap is always version 2; MOUNT and NFS are both driven at version 3
// by this client (spec.md §1: "No NFSv2 or NFSv4").
const (
	PortmapVersion uint32 = 2
	MountVersion   uint32 = 3
	NFSVersion     uint32 = 3
)

// Protocol identifiers as used by the portmapper (RFC 1057 Appendix A).
const (
	ProtoTCP uint32 = 6
	ProtoUDP uint32 = 17
)

// DefaultTimeout is the one-shot RPC timeout applied uniformly to every
// call for the life of a session (spec.md §4.3): 60 seconds.
const DefaultTimeout = 60 * time.Second

// maxFragmentSize bounds a single TCP record-marking fragment read from a
// server, guarding against a hostile or corrupt length prefix.
const maxFragmentSize = 4 * 1024 * 1024

// acceptStatusName renders an accept_stat for error messages.
func acceptStatusName(stat uint32) string {
	switch stat {
	case AcceptSuccess:
		return "SUCCESS"
	case AcceptProgUnavail:
		return "PROG_UNAVAIL"
	case AcceptProgMismatch:
		return "PROG_MISMATCH"
	case AcceptProcUnavail:
		return "PROC_UNAVAIL"
	case AcceptGarbageArgs:
		return "GARBAGE_ARGS"
	case AcceptSystemErr:
		return "SYSTEM_ERR"
	default:
		return "UNKNOWN_ACCEPT_STAT"
	}
}

// rejectStatusName renders a reject_stat for error messages.
func rejectStatusName(stat uint32) string {
	switch stat {
	case RejectMismatch:
		return "RPC_MISMATCH"
	case RejectAuthErr:
		return "AUTH_ERROR"
	default:
		return "UNKNOWN_REJECT_STAT"
	}
}
