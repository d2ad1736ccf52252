package rpc

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/marmos91/nfsh/internal/xdr"
)

// Authenticator builds the credential carried on every RPC call; the call
// verifier is always AUTH_NULL and is not built here. Destroying the previous
// authenticator before installing a new one is the caller's
// responsibility (spec.md §3 invariant I4); this package does not hold
// global authenticator state.
type Authenticator interface {
	// Flavor returns the auth flavor constant (AuthUnix, AuthDES, ...).
	Flavor() uint32
	// CredentialBody returns the XDR-encoded opaque body of the credential.
	CredentialBody() ([]byte, error)
}

// unixMachineNameMax truncates the local hostname embedded in AUTH_UNIX
// credentials, matching the conventional 255-byte XDR string cap and
// common reference client limits.
const unixMachineNameMax = 255

// UnixAuth implements AUTH_UNIX (RFC 5531 Section 9.2 / RFC 1057).
type UnixAuth struct {
	UID  uint32
	GID  uint32
	GIDs []uint32 // supplementary groups; spec.md §9 notes only GIDs[0] model is used elsewhere
}

// NewUnixAuth builds an AUTH_UNIX authenticator for uid/gid. Per spec.md
// §4.6, the group list is truncated to a single element regardless of how
// many supplementary GIDs the operator supplies — AUTH_UNIX permits up to
// 16, but this client intentionally reproduces the narrower behavior of
// the tool it replaces (documented as a design note, not silently fixed).
func NewUnixAuth(uid, gid uint32) *UnixAuth {
	return &UnixAuth{UID: uid, GID: gid, GIDs: []uint32{gid}}
}

func (a *UnixAuth) Flavor() uint32 { return AuthUnix }

func (a *UnixAuth) CredentialBody() ([]byte, error) {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	if len(hostname) > unixMachineNameMax {
		hostname = hostname[:unixMachineNameMax]
	}

	var buf bytes.Buffer
	if err := xdr.WriteUint32(&buf, uint32(time.Now().Unix())); err != nil {
		return nil, fmt.Errorf("write stamp: %w", err)
	}
	if err := xdr.WriteXDRString(&buf, hostname); err != nil {
		return nil, fmt.Errorf("write machine name: %w", err)
	}
	if err := xdr.WriteUint32(&buf, a.UID); err != nil {
		return nil, fmt.Errorf("write uid: %w", err)
	}
	if err := xdr.WriteUint32(&buf, a.GID); err != nil {
		return nil, fmt.Errorf("write gid: %w", err)
	}
	if err := xdr.WriteUint32(&buf, uint32(len(a.GIDs))); err != nil {
		return nil, fmt.Errorf("write gids length: %w", err)
	}
	for _, gid := range a.GIDs {
		if err := xdr.WriteUint32(&buf, gid); err != nil {
			return nil, fmt.Errorf("write gid entry: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// DESAuth is accepted on the command line (spec.md §1) but AUTH_DES
// (RFC 2695 secure RPC) is not implemented. Building its credential body
// always fails; the caller surfaces this as a fatal configuration error
// rather than silently falling back to AUTH_UNIX.
type DESAuth struct {
	NetworkName string
	SecretKey   string
}

func (a *DESAuth) Flavor() uint32 { return AuthDES }

func (a *DESAuth) CredentialBody() ([]byte, error) {
	return nil, fmt.Errorf("AUTH_DES is not supported by this client (secure RPC keyserving is out of scope)")
}

// NullAuth implements AUTH_NULL: no credentials, used for portmap NULL
// pings and CALLIT envelopes.
type NullAuth struct{}

func (NullAuth) Flavor() uint32                    { return AuthNull }
func (NullAuth) CredentialBody() ([]byte, error) { return nil, nil }
