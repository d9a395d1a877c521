package gossip

import (
	"testing"
	"time"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/member"
	"github.com/nimbus-cluster/membercore/status"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sender := address.UniqueAddress{Address: address.Address{Host: "node-a", Port: 7000}, Uid: -12345}
	m1, _ := member.New(sender, []string{"dc-east", "seed"}, member.AppVersion("1.2.3"))
	m1.Status = status.Up
	m1.UpNumber = 3

	m2, _ := member.New(address.UniqueAddress{Address: address.Address{Host: "node-b", Port: 7000}, Uid: 99}, []string{"dc-east"}, member.DefaultAppVersion)

	tombstoned := address.UniqueAddress{Address: address.Address{Host: "node-c", Port: 7000}, Uid: 7}
	ts := time.Unix(1700000000, 123000).UTC()

	s := Snapshot{
		Sender:     sender,
		Members:    []member.Member{m1, m2},
		Tombstones: map[address.UniqueAddress]time.Time{tombstoned: ts},
	}

	encoded := Encode(s)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	if decoded.Sender != sender {
		t.Errorf("sender mismatch: got %+v want %+v", decoded.Sender, sender)
	}
	if len(decoded.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(decoded.Members))
	}
	gotM1, ok := containsUA(decoded.Members, m1.UniqueAddress)
	if !ok {
		t.Fatal("m1 missing from decoded members")
	}
	if gotM1.Status != status.Up || gotM1.UpNumber != 3 || gotM1.AppVersion != "1.2.3" {
		t.Errorf("m1 round-trip mismatch: %+v", gotM1)
	}
	if len(gotM1.Roles) != 2 {
		t.Errorf("expected 2 roles on m1, got %v", gotM1.Roles)
	}

	gotTS, ok := decoded.Tombstones[tombstoned]
	if !ok {
		t.Fatal("tombstone missing from decoded snapshot")
	}
	if !gotTS.Equal(ts) {
		t.Errorf("tombstone timestamp mismatch: got %v want %v", gotTS, ts)
	}
}

func TestEncodeDecodeNegativeUid(t *testing.T) {
	s := Snapshot{
		Sender: address.UniqueAddress{Address: address.Address{Host: "h", Port: 1}, Uid: -1},
	}
	decoded, err := Decode(Encode(s))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Sender.Uid != -1 {
		t.Errorf("expected uid -1, got %d", decoded.Sender.Uid)
	}
}

func TestDecodeMalformedBytes(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("expected decode error for malformed bytes")
	}
}
