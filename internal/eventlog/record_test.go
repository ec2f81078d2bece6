package eventlog

import "testing"

func TestRecordRoundtrip(t *testing.T) {
	header := timeHeader(1234)
	payload := []byte(`{"kind":"submitted"}`)
	rec := EncodeRecord(header, payload)
	dec, ok := DecodeRecord(rec)
	if !ok {
		t.Fatalf("decode failed")
	}
	if ms, ok := headerTime(dec.Header); !ok || ms != 1234 {
		t.Fatalf("header time = %d %v", ms, ok)
	}
	if string(dec.Payload) != string(payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestRecordCRCFail(t *testing.T) {
	rec := EncodeRecord([]byte("x"), []byte("y"))
	rec[len(rec)-1] ^= 0xFF // corrupt one byte
	if _, ok := DecodeRecord(rec); ok {
		t.Fatalf("expected crc failure")
	}
	if _, ok := DecodeRecord([]byte{1}); ok {
		t.Fatalf("expected short record to fail")
	}
}
