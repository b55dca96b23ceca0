package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/sha3"
)

var (
	ErrBadRecordHeader = errors.New("bad walker record header")
	ErrRecordDigest    = errors.New("walker record digest mismatch")
)

// RecordHeader prefixes a batch of walker records in transit.
type RecordHeader struct {
	Magic      uint32   // "WLKR"
	Version    uint16   // format version
	Reserved   uint16   // padding for future use
	WalkerSize uint32   // scalars per record
	Count      uint32   // number of records
	Digest     [32]byte // SHA3-256 of the payload
}

const (
	RecordMagic      = 0x524B4C57 // "WLKR" in little endian
	RecordVersion    = 1
	RecordHeaderSize = 48 // sizeof(RecordHeader)
)

// EncodeRecords serializes count records of walkerSize scalars taken from
// data. Layout: [RecordHeader][re,im float64 pairs, little endian].
func EncodeRecords(data []complex128, walkerSize, count int) ([]byte, error) {
	if walkerSize <= 0 {
		return nil, fmt.Errorf("%w: walker size %d", ErrBadRecordHeader, walkerSize)
	}
	if len(data) < walkerSize*count {
		return nil, fmt.Errorf("%w: %d scalars for %d records of %d", ErrBadRecordHeader, len(data), count, walkerSize)
	}

	payload := make([]byte, walkerSize*count*ComplexSize)
	for i, v := range data[:walkerSize*count] {
		binary.LittleEndian.PutUint64(payload[i*ComplexSize:], math.Float64bits(real(v)))
		binary.LittleEndian.PutUint64(payload[i*ComplexSize+8:], math.Float64bits(imag(v)))
	}

	header := RecordHeader{
		Magic:      RecordMagic,
		Version:    RecordVersion,
		WalkerSize: uint32(walkerSize),
		Count:      uint32(count),
		Digest:     sha3.Sum256(payload),
	}

	buf := bytes.NewBuffer(make([]byte, 0, RecordHeaderSize+len(payload)))
	if err := binary.Write(buf, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// DecodeRecords parses a batch produced by EncodeRecords and checks the
// walker size and payload digest. It returns the records and their count.
func DecodeRecords(b []byte, walkerSize int) ([]complex128, int, error) {
	if len(b) < RecordHeaderSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrBadRecordHeader, len(b))
	}

	var header RecordHeader
	if err := binary.Read(bytes.NewReader(b[:RecordHeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, 0, err
	}
	if header.Magic != RecordMagic {
		return nil, 0, fmt.Errorf("%w: magic 0x%08x", ErrBadRecordHeader, header.Magic)
	}
	if header.Version != RecordVersion {
		return nil, 0, fmt.Errorf("%w: version %d", ErrBadRecordHeader, header.Version)
	}
	if int(header.WalkerSize) != walkerSize {
		return nil, 0, fmt.Errorf("%w: walker size %d, want %d", ErrBadRecordHeader, header.WalkerSize, walkerSize)
	}

	payload := b[RecordHeaderSize:]
	n := int(header.Count) * walkerSize
	if len(payload) != n*ComplexSize {
		return nil, 0, fmt.Errorf("%w: payload %d bytes for %d records", ErrBadRecordHeader, len(payload), header.Count)
	}
	if sha3.Sum256(payload) != header.Digest {
		return nil, 0, ErrRecordDigest
	}

	out := make([]complex128, n)
	for i := range out {
		re := math.Float64frombits(binary.LittleEndian.Uint64(payload[i*ComplexSize:]))
		im := math.Float64frombits(binary.LittleEndian.Uint64(payload[i*ComplexSize+8:]))
		out[i] = complex(re, im)
	}
	return out, int(header.Count), nil
}
