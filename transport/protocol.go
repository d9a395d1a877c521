// Package transport carries gossip snapshots, Leaving-acknowledgement
// requests and failure-detector pings between nodes over TCP.
// Envelope framing is grounded on the teacher's gossip/protocol.go:
// an identifier byte plus fields, built up in a bytes.Buffer and
// flushed with binary.ContextfulWrite, then a uint32 length prefix on
// the wire (the handleConnection/server.go side of the same file).
package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/nimbus-cluster/membercore/address"
	butils "github.com/nimbus-cluster/membercore/binary"
	"github.com/nimbus-cluster/membercore/gossip"
)

// Identifier bytes for each envelope kind, mirroring the teacher's
// IDENTIFIER_GOSSIP_* const block in gossip/gossip.go.
const (
	identifierGossip byte = iota + 1
	identifierAckRequest
	identifierAckResponse
	identifierPing
	identifierPong
)

type gossipEnvelope struct {
	snapshot gossip.Snapshot
}

func (e gossipEnvelope) encode(ctx context.Context, w io.Writer) error {
	var b bytes.Buffer
	if err := butils.EncodeIdentifier(identifierGossip, &b); err != nil {
		return err
	}
	if err := butils.EncodeBytes(gossip.Encode(e.snapshot), &b); err != nil {
		return err
	}
	return writeFramed(ctx, w, b)
}

func decodeGossipEnvelope(r io.Reader) (gossip.Snapshot, error) {
	payload, err := butils.DecodeStringToBytes(r)
	if err != nil {
		return gossip.Snapshot{}, err
	}
	return gossip.Decode(payload)
}

type ackRequestEnvelope struct {
	from, leaving address.UniqueAddress
}

func (e ackRequestEnvelope) encode(ctx context.Context, w io.Writer) error {
	var b bytes.Buffer
	if err := butils.EncodeIdentifier(identifierAckRequest, &b); err != nil {
		return err
	}
	if err := encodeUniqueAddress(e.from, &b); err != nil {
		return err
	}
	if err := encodeUniqueAddress(e.leaving, &b); err != nil {
		return err
	}
	return writeFramed(ctx, w, b)
}

func decodeAckRequestEnvelope(r io.Reader) (from, leaving address.UniqueAddress, err error) {
	if from, err = decodeUniqueAddress(r); err != nil {
		return
	}
	leaving, err = decodeUniqueAddress(r)
	return
}

type ackResponseEnvelope struct {
	ok       bool
	errorMsg string
}

func (e ackResponseEnvelope) encode(ctx context.Context, w io.Writer) error {
	var b bytes.Buffer
	if err := butils.EncodeIdentifier(identifierAckResponse, &b); err != nil {
		return err
	}
	if err := butils.EncodeBool(e.ok, &b); err != nil {
		return err
	}
	if err := butils.EncodeString(e.errorMsg, &b); err != nil {
		return err
	}
	return writeFramed(ctx, w, b)
}

func decodeAckResponseEnvelope(r io.Reader) (ackResponseEnvelope, error) {
	ok, err := butils.DecodeBool(r)
	if err != nil {
		return ackResponseEnvelope{}, err
	}
	msg, err := butils.DecodeString(r)
	if err != nil {
		return ackResponseEnvelope{}, err
	}
	return ackResponseEnvelope{ok: ok, errorMsg: msg}, nil
}

func encodePingLike(ctx context.Context, w io.Writer, identifier byte) error {
	var b bytes.Buffer
	if err := butils.EncodeIdentifier(identifier, &b); err != nil {
		return err
	}
	return writeFramed(ctx, w, b)
}

func encodeUniqueAddress(ua address.UniqueAddress, w io.Writer) error {
	if err := butils.EncodeString(ua.Address.Host, w); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, int32(ua.Address.Port)); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, ua.Uid)
}

func decodeUniqueAddress(r io.Reader) (address.UniqueAddress, error) {
	host, err := butils.DecodeString(r)
	if err != nil {
		return address.UniqueAddress{}, err
	}
	var port int32
	if err := binary.Read(r, binary.BigEndian, &port); err != nil {
		return address.UniqueAddress{}, err
	}
	var uid int64
	if err := binary.Read(r, binary.BigEndian, &uid); err != nil {
		return address.UniqueAddress{}, err
	}
	return address.UniqueAddress{Address: address.Address{Host: host, Port: int(port)}, Uid: uid}, nil
}

// writeFramed prefixes b with its own length, the way server.go's
// handleConnection expects to read a uint32 length then exactly that
// many bytes before looking at the identifier.
func writeFramed(ctx context.Context, w io.Writer, b bytes.Buffer) error {
	var framed bytes.Buffer
	if err := butils.EncodeUInt32(uint32(b.Len()), &framed); err != nil {
		return err
	}
	if _, err := b.WriteTo(&framed); err != nil {
		return err
	}
	return butils.ContextfulWrite(ctx, w, framed)
}

// readFrame reads one length-prefixed envelope and returns its
// identifier and the remaining bytes as a reader.
func readFrame(r io.Reader) (byte, io.Reader, error) {
	l, err := butils.DecodeUInt32(r)
	if err != nil {
		return 0, nil, err
	}
	body := make([]byte, l)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	buf := bytes.NewBuffer(body)
	identifier, err := butils.DecodeIdentifier(buf)
	if err != nil {
		return 0, nil, err
	}
	return identifier, buf, nil
}

func unexpectedIdentifier(id byte) error {
	return fmt.Errorf("transport: unexpected envelope identifier %d", id)
}

// dialTimeout is TimeoutFailureDetector's timeout when its own Timeout
// is not set.
const dialTimeout = 5 * time.Second
