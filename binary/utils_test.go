package binary

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	if err := EncodeIdentifier(7, &buf); err != nil {
		t.Fatalf("EncodeIdentifier: %v", err)
	}
	if err := EncodeBool(true, &buf); err != nil {
		t.Fatalf("EncodeBool: %v", err)
	}
	if err := EncodeUInt32(1<<20+3, &buf); err != nil {
		t.Fatalf("EncodeUInt32: %v", err)
	}
	if err := EncodeUInt64(1<<40+5, &buf); err != nil {
		t.Fatalf("EncodeUInt64: %v", err)
	}
	if err := EncodeString("hello membercore", &buf); err != nil {
		t.Fatalf("EncodeString: %v", err)
	}
	if err := EncodeBytes([]byte{1, 2, 3, 4}, &buf); err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}

	id, err := DecodeIdentifier(&buf)
	if err != nil || id != 7 {
		t.Fatalf("DecodeIdentifier: got (%v, %v)", id, err)
	}
	b, err := DecodeBool(&buf)
	if err != nil || !b {
		t.Fatalf("DecodeBool: got (%v, %v)", b, err)
	}
	u32, err := DecodeUInt32(&buf)
	if err != nil || u32 != 1<<20+3 {
		t.Fatalf("DecodeUInt32: got (%v, %v)", u32, err)
	}
	u64, err := DecodeUInt64(&buf)
	if err != nil || u64 != 1<<40+5 {
		t.Fatalf("DecodeUInt64: got (%v, %v)", u64, err)
	}
	s, err := DecodeString(&buf)
	if err != nil || s != "hello membercore" {
		t.Fatalf("DecodeString: got (%q, %v)", s, err)
	}
	bs, err := DecodeStringToBytes(&buf)
	if err != nil || !bytes.Equal(bs, []byte{1, 2, 3, 4}) {
		t.Fatalf("DecodeStringToBytes: got (%v, %v)", bs, err)
	}
}

func TestDecodeIdentifierOnEmptyReaderErrors(t *testing.T) {
	if _, err := DecodeIdentifier(bytes.NewReader(nil)); err == nil {
		t.Fatal("expected an error decoding from an empty reader")
	}
}
