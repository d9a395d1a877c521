package gossip

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/member"
	"github.com/nimbus-cluster/membercore/status"
)

// Wire field numbers for Snapshot, matching the layout documented in
// SPEC_FULL.md §3. No .proto is compiled; Encode/Decode call the same
// protowire primitives generated code would, which is the lowest layer
// google.golang.org/protobuf exposes for hand-built wire-compatible
// messages.
const (
	fieldSenderHost byte = 1
	fieldSenderPort byte = 2
	fieldSenderUid  byte = 3
	fieldMember     byte = 4
	fieldTombstone  byte = 5
)

// member sub-message field numbers.
const (
	mfHost       byte = 1
	mfPort       byte = 2
	mfUid        byte = 3
	mfUpNumber   byte = 4
	mfStatus     byte = 5
	mfRole       byte = 6
	mfAppVersion byte = 7
)

// tombstone sub-message field numbers.
const (
	tfHost  byte = 1
	tfPort  byte = 2
	tfUid   byte = 3
	tfNanos byte = 4
)

// Encode serializes a Snapshot to its wire form.
func Encode(s Snapshot) []byte {
	var b []byte
	b = protowire.AppendTag(b, protowire.Number(fieldSenderHost), protowire.BytesType)
	b = protowire.AppendString(b, s.Sender.Address.Host)
	b = protowire.AppendTag(b, protowire.Number(fieldSenderPort), protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Sender.Address.Port))
	b = protowire.AppendTag(b, protowire.Number(fieldSenderUid), protowire.VarintType)
	b = protowire.AppendVarint(b, encodeZigZag(s.Sender.Uid))

	for _, m := range s.Members {
		b = protowire.AppendTag(b, protowire.Number(fieldMember), protowire.BytesType)
		b = protowire.AppendBytes(b, encodeMember(m))
	}
	for ua, t := range s.Tombstones {
		b = protowire.AppendTag(b, protowire.Number(fieldTombstone), protowire.BytesType)
		b = protowire.AppendBytes(b, encodeTombstone(ua, t))
	}
	return b
}

func encodeMember(m member.Member) []byte {
	var b []byte
	b = protowire.AppendTag(b, protowire.Number(mfHost), protowire.BytesType)
	b = protowire.AppendString(b, m.UniqueAddress.Address.Host)
	b = protowire.AppendTag(b, protowire.Number(mfPort), protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.UniqueAddress.Address.Port))
	b = protowire.AppendTag(b, protowire.Number(mfUid), protowire.VarintType)
	b = protowire.AppendVarint(b, encodeZigZag(m.UniqueAddress.Uid))
	b = protowire.AppendTag(b, protowire.Number(mfUpNumber), protowire.VarintType)
	b = protowire.AppendVarint(b, encodeZigZag(int64(m.UpNumber)))
	b = protowire.AppendTag(b, protowire.Number(mfStatus), protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Status))
	for _, r := range m.Roles {
		b = protowire.AppendTag(b, protowire.Number(mfRole), protowire.BytesType)
		b = protowire.AppendString(b, r)
	}
	b = protowire.AppendTag(b, protowire.Number(mfAppVersion), protowire.BytesType)
	b = protowire.AppendString(b, string(m.AppVersion))
	return b
}

func encodeTombstone(ua address.UniqueAddress, t time.Time) []byte {
	var b []byte
	b = protowire.AppendTag(b, protowire.Number(tfHost), protowire.BytesType)
	b = protowire.AppendString(b, ua.Address.Host)
	b = protowire.AppendTag(b, protowire.Number(tfPort), protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ua.Address.Port))
	b = protowire.AppendTag(b, protowire.Number(tfUid), protowire.VarintType)
	b = protowire.AppendVarint(b, encodeZigZag(ua.Uid))
	b = protowire.AppendTag(b, protowire.Number(tfNanos), protowire.VarintType)
	b = protowire.AppendVarint(b, encodeZigZag(t.UnixNano()))
	return b
}

func encodeZigZag(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

func decodeZigZag(n uint64) int64 {
	return int64(n>>1) ^ -int64(n&1)
}

// Decode parses the wire form produced by Encode. It returns an error
// if the bytes are malformed; it does not reject a member whose roles
// lack a datacenter prefix — that check happens at the membership
// coordinator boundary (spec §7 MissingDatacenterRole), not the codec.
func Decode(data []byte) (Snapshot, error) {
	s := Snapshot{Tombstones: make(map[address.UniqueAddress]time.Time)}
	var host string
	var port int
	var uid int64

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Snapshot{}, fmt.Errorf("gossip: malformed tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch byte(num) {
		case fieldSenderHost:
			v, m, err := consumeString(data, typ)
			if err != nil {
				return Snapshot{}, err
			}
			host = v
			data = data[m:]
		case fieldSenderPort:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return Snapshot{}, err
			}
			port = int(v)
			data = data[m:]
		case fieldSenderUid:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return Snapshot{}, err
			}
			uid = decodeZigZag(v)
			data = data[m:]
		case fieldMember:
			payload, m, err := consumeBytes(data, typ)
			if err != nil {
				return Snapshot{}, err
			}
			mem, err := decodeMember(payload)
			if err != nil {
				return Snapshot{}, err
			}
			s.Members = append(s.Members, mem)
			data = data[m:]
		case fieldTombstone:
			payload, m, err := consumeBytes(data, typ)
			if err != nil {
				return Snapshot{}, err
			}
			ua, t, err := decodeTombstone(payload)
			if err != nil {
				return Snapshot{}, err
			}
			s.Tombstones[ua] = t
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return Snapshot{}, fmt.Errorf("gossip: malformed field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}

	s.Sender = address.UniqueAddress{Address: address.Address{Host: host, Port: port}, Uid: uid}
	return s, nil
}

func decodeMember(data []byte) (member.Member, error) {
	var host string
	var port int
	var uid int64
	var upNumber int32
	var st status.MemberStatus
	var roles []string
	var appVersion string

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return member.Member{}, fmt.Errorf("gossip: malformed member tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch byte(num) {
		case mfHost:
			v, m, err := consumeString(data, typ)
			if err != nil {
				return member.Member{}, err
			}
			host, data = v, data[m:]
		case mfPort:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return member.Member{}, err
			}
			port, data = int(v), data[m:]
		case mfUid:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return member.Member{}, err
			}
			uid, data = decodeZigZag(v), data[m:]
		case mfUpNumber:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return member.Member{}, err
			}
			upNumber, data = int32(decodeZigZag(v)), data[m:]
		case mfStatus:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return member.Member{}, err
			}
			st, data = status.MemberStatus(v), data[m:]
		case mfRole:
			v, m, err := consumeString(data, typ)
			if err != nil {
				return member.Member{}, err
			}
			roles = append(roles, v)
			data = data[m:]
		case mfAppVersion:
			v, m, err := consumeString(data, typ)
			if err != nil {
				return member.Member{}, err
			}
			appVersion, data = v, data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return member.Member{}, fmt.Errorf("gossip: malformed member field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}

	return member.Member{
		UniqueAddress: address.UniqueAddress{Address: address.Address{Host: host, Port: port}, Uid: uid},
		UpNumber:      upNumber,
		Status:        st,
		Roles:         roles,
		AppVersion:    member.AppVersion(appVersion),
	}, nil
}

func decodeTombstone(data []byte) (address.UniqueAddress, time.Time, error) {
	var host string
	var port int
	var uid int64
	var nanos int64

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return address.UniqueAddress{}, time.Time{}, fmt.Errorf("gossip: malformed tombstone tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch byte(num) {
		case tfHost:
			v, m, err := consumeString(data, typ)
			if err != nil {
				return address.UniqueAddress{}, time.Time{}, err
			}
			host, data = v, data[m:]
		case tfPort:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return address.UniqueAddress{}, time.Time{}, err
			}
			port, data = int(v), data[m:]
		case tfUid:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return address.UniqueAddress{}, time.Time{}, err
			}
			uid, data = decodeZigZag(v), data[m:]
		case tfNanos:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return address.UniqueAddress{}, time.Time{}, err
			}
			nanos, data = decodeZigZag(v), data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return address.UniqueAddress{}, time.Time{}, fmt.Errorf("gossip: malformed tombstone field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}

	ua := address.UniqueAddress{Address: address.Address{Host: host, Port: port}, Uid: uid}
	return ua, time.Unix(0, nanos).UTC(), nil
}

func consumeString(data []byte, typ protowire.Type) (string, int, error) {
	b, n, err := consumeBytes(data, typ)
	if err != nil {
		return "", 0, err
	}
	return string(b), n, nil
}

func consumeBytes(data []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("gossip: expected bytes-typed field, got wire type %d", typ)
	}
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, fmt.Errorf("gossip: malformed bytes field: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeVarint(data []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("gossip: expected varint-typed field, got wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, fmt.Errorf("gossip: malformed varint field: %w", protowire.ParseError(n))
	}
	return v, n, nil
}
