package wal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects how a record payload is compressed on disk.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecSnappy
	CodecLZ4
	CodecZstd
)

// String returns the string representation of the codec.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCodec converts a codec name (as it appears in configuration) to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "snappy":
		return CodecSnappy, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return CodecNone, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Record is a single pending write inside a durability intent record.
type Record struct {
	Key   string
	Value []byte
}

// entryHeader is the fixed-size header that precedes the payload on disk.
type entryHeader struct {
	Magic      uint32 // identifies a corvus WAL record
	Format     uint16 // encoding format version
	Codec      uint8  // payload compression codec
	Reserved   uint8
	Count      uint32 // number of records in the payload
	PayloadLen uint32 // compressed payload length in bytes
	Checksum   uint32 // CRC32-IEEE over header (checksum zeroed) + payload
}

const (
	entryMagic      = 0x43575231 // "CWR1"
	entryFormat     = 1
	entryHeaderSize = 20
	checksumOffset  = 16
)

// Shared zstd coders. EncodeAll/DecodeAll are safe for concurrent use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Encode serializes records into a single checksummed entry, compressing
// the payload with the given codec.
func Encode(records []Record, codec Codec) ([]byte, error) {
	payload := encodePayload(records)

	compressed, err := compress(payload, codec)
	if err != nil {
		return nil, err
	}

	header := entryHeader{
		Magic:      entryMagic,
		Format:     entryFormat,
		Codec:      uint8(codec),
		Count:      uint32(len(records)),
		PayloadLen: uint32(len(compressed)),
	}

	var buf bytes.Buffer
	buf.Grow(entryHeaderSize + len(compressed))
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	buf.Write(compressed)

	// Checksum covers everything except the checksum field itself.
	data := buf.Bytes()
	checksum := entryChecksum(data)
	binary.LittleEndian.PutUint32(data[checksumOffset:checksumOffset+4], checksum)

	return data, nil
}

// Decode parses and verifies a serialized entry, returning its records.
func Decode(data []byte) ([]Record, error) {
	if len(data) < entryHeaderSize {
		return nil, ErrInvalidRecord
	}

	var header entryHeader
	if err := binary.Read(bytes.NewReader(data[:entryHeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header.Magic != entryMagic || header.Format != entryFormat {
		return nil, ErrInvalidRecord
	}
	if len(data) != entryHeaderSize+int(header.PayloadLen) {
		return nil, ErrInvalidRecord
	}

	if entryChecksum(data) != header.Checksum {
		return nil, ErrChecksumMismatch
	}

	payload, err := decompress(data[entryHeaderSize:], Codec(header.Codec))
	if err != nil {
		return nil, err
	}

	records, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}
	if uint32(len(records)) != header.Count {
		return nil, ErrInvalidRecord
	}

	return records, nil
}

// entryChecksum computes the CRC over the entry with the checksum field zeroed.
func entryChecksum(data []byte) uint32 {
	crc := crc32.NewIEEE()
	crc.Write(data[:checksumOffset])
	crc.Write([]byte{0, 0, 0, 0})
	crc.Write(data[checksumOffset+4:])
	return crc.Sum32()
}

// encodePayload serializes records as length-prefixed key/value pairs.
func encodePayload(records []Record) []byte {
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, rec := range records {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(rec.Key)))
		buf.Write(lenBuf[:])
		buf.WriteString(rec.Key)
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(rec.Value)))
		buf.Write(lenBuf[:])
		buf.Write(rec.Value)
	}
	return buf.Bytes()
}

// decodePayload parses length-prefixed key/value pairs.
func decodePayload(payload []byte) ([]Record, error) {
	var records []Record
	rest := payload
	for len(rest) > 0 {
		key, remaining, err := readChunk(rest)
		if err != nil {
			return nil, err
		}
		value, remaining, err := readChunk(remaining)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{Key: string(key), Value: value})
		rest = remaining
	}
	return records, nil
}

// readChunk reads one length-prefixed chunk and returns it with the remainder.
func readChunk(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, ErrInvalidRecord
	}
	n := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, ErrInvalidRecord
	}
	chunk := make([]byte, n)
	copy(chunk, data[:n])
	return chunk, data[n:], nil
}

func compress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		return snappy.Encode(nil, data), nil
	case CodecLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("wal: lz4 compression: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("wal: lz4 compression: %w", err)
		}
		return buf.Bytes(), nil
	case CodecZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, uint8(codec))
	}
}

func decompress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("wal: snappy decompression: %w", err)
		}
		return out, nil
	case CodecLZ4:
		zr := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("wal: lz4 decompression: %w", err)
		}
		return out, nil
	case CodecZstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("wal: zstd decompression: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, uint8(codec))
	}
}
