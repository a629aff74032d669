package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	recordFormatVersionCurrent = 1

	maxFieldLen    = math.MaxUint16
	maxPermissions = math.MaxUint16
)

// Encode serializes a record into the compact binary layout stored by
// [RedisRepository]. The session id is the storage key and is not encoded.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 + len(s.AccessToken) + len(s.RefreshToken))

	buf.WriteByte(recordFormatVersionCurrent)

	for _, field := range []string{s.UserID, s.Username, s.Email, s.Role} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	if len(s.Permissions) > maxPermissions {
		return nil, errors.New("too many permissions")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.Permissions))); err != nil {
		return nil, err
	}
	for _, perm := range s.Permissions {
		if err := writeString(&buf, perm); err != nil {
			return nil, err
		}
	}

	for _, field := range []string{s.AccessToken, s.RefreshToken} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	for _, ts := range []int64{s.CreatedAt, s.LastActivity, s.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	for _, field := range []string{s.IPAddress, s.UserAgent, s.DeviceInfo} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	if s.IsActive {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}

// Decode parses a record produced by [Encode].
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent {
		return nil, errors.New("invalid record version")
	}

	s := &Session{}

	for _, dst := range []*string{&s.UserID, &s.Username, &s.Email, &s.Role} {
		if *dst, err = readString(reader); err != nil {
			return nil, err
		}
	}

	var permCount uint16
	if err := binary.Read(reader, binary.BigEndian, &permCount); err != nil {
		return nil, err
	}
	if permCount > 0 {
		s.Permissions = make([]string, 0, min(int(permCount), reader.Len()/2))
		for i := 0; i < int(permCount); i++ {
			perm, err := readString(reader)
			if err != nil {
				return nil, err
			}
			s.Permissions = append(s.Permissions, perm)
		}
	}

	for _, dst := range []*string{&s.AccessToken, &s.RefreshToken} {
		if *dst, err = readString(reader); err != nil {
			return nil, err
		}
	}

	for _, dst := range []*int64{&s.CreatedAt, &s.LastActivity, &s.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}

	for _, dst := range []*string{&s.IPAddress, &s.UserAgent, &s.DeviceInfo} {
		if *dst, err = readString(reader); err != nil {
			return nil, err
		}
	}

	active, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if active > 1 {
		return nil, errors.New("invalid active flag")
	}
	s.IsActive = active == 1

	if reader.Len() != 0 {
		return nil, errors.New("trailing record bytes")
	}

	return s, nil
}

func writeString(buf *bytes.Buffer, v string) error {
	if len(v) > maxFieldLen {
		return errors.New("record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if int(n) > reader.Len() {
		return "", io.ErrUnexpectedEOF
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
