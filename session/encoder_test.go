package session

import (
	"bytes"
	"testing"
	"time"
)

func TestEncodeDecodeKeepsEveryField(t *testing.T) {
	in := testSession("sid-1", "u-1", testEpoch, time.Hour)
	in.Permissions = []string{"a", "", "c"}
	in.IsActive = false

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if out.SessionID != "" {
		t.Fatalf("session id must not be encoded, got %q", out.SessionID)
	}
	out.SessionID = in.SessionID
	if out.UserID != in.UserID || out.Email != in.Email || out.DeviceInfo != in.DeviceInfo ||
		out.CreatedAt != in.CreatedAt || out.LastActivity != in.LastActivity || out.ExpiresAt != in.ExpiresAt ||
		out.IsActive != in.IsActive || len(out.Permissions) != 3 || out.Permissions[1] != "" {
		t.Fatalf("decoded record differs:\n in=%+v\nout=%+v", in, out)
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	data, err := Encode(testSession("sid-1", "u-1", testEpoch, time.Hour))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := map[string][]byte{
		"empty":     nil,
		"version":   append([]byte{9}, data[1:]...),
		"truncated": data[:len(data)-3],
		"trailing":  append(bytes.Clone(data), 0),
	}
	for name, input := range cases {
		if _, err := Decode(input); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}

func TestEncodeRejectsOversizedField(t *testing.T) {
	sess := testSession("sid", "u", testEpoch, time.Hour)
	sess.UserAgent = string(make([]byte, maxFieldLen+1))
	if _, err := Encode(sess); err == nil {
		t.Fatal("expected oversized field to be rejected")
	}
}

func FuzzDecodeRecord(f *testing.F) {
	seed, err := Encode(testSession("sid", "u", testEpoch, time.Hour))
	if err != nil {
		f.Fatalf("encode seed: %v", err)
	}
	f.Add(seed)
	f.Add([]byte{1})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		sess, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(sess)
		if err != nil {
			t.Fatalf("re-encode decoded record: %v", err)
		}
		if !bytes.Equal(again, data) {
			t.Fatalf("round trip changed bytes")
		}
	})
}
