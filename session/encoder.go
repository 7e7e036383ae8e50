package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const sessionFormatVersionCurrent = 1

func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64 + len(s.Username) + len(s.CSRFToken) + len(s.FlashArg))

	buf.WriteByte(sessionFormatVersionCurrent)

	if err := writeShortString(&buf, string(s.Role), "role too long"); err != nil {
		return nil, err
	}
	if err := writeShortString(&buf, s.Username, "username too long"); err != nil {
		return nil, err
	}
	if err := writeShortString(&buf, s.CSRFToken, "csrf token too long"); err != nil {
		return nil, err
	}

	buf.WriteByte(s.FlashKind)
	if len(s.FlashArg) > math.MaxUint16 {
		return nil, errors.New("flash argument too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.FlashArg))); err != nil {
		return nil, err
	}
	buf.WriteString(s.FlashArg)

	if err := binary.Write(&buf, binary.BigEndian, s.Version); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	role, err := readShortString(reader)
	if err != nil {
		return nil, err
	}
	s.Role = Role(role)

	if s.Username, err = readShortString(reader); err != nil {
		return nil, err
	}
	if s.CSRFToken, err = readShortString(reader); err != nil {
		return nil, err
	}

	if s.FlashKind, err = reader.ReadByte(); err != nil {
		return nil, err
	}
	var flashLen uint16
	if err := binary.Read(reader, binary.BigEndian, &flashLen); err != nil {
		return nil, err
	}
	flash := make([]byte, flashLen)
	if _, err := io.ReadFull(reader, flash); err != nil {
		return nil, err
	}
	s.FlashArg = string(flash)

	if err := binary.Read(reader, binary.BigEndian, &s.Version); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return s, nil
}

func writeShortString(buf *bytes.Buffer, v, tooLong string) error {
	if len(v) > 255 {
		return errors.New(tooLong)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readShortString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return "", err
	}
	return string(out), nil
}
