// Package checkpoint reads and writes the persisted sample and sim state.
//
// A checkpoint file is a single JSON header line followed by a gzip
// compressed JSON payload. The header carries a checksum of the compressed
// bytes so a checkpoint can be verified without decoding it.
package checkpoint

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FormatVersion is the header version written by Write.
const FormatVersion = 1

// MaxDecompressedSize caps the decoded payload of a checkpoint (512MB).
const MaxDecompressedSize = 512 * 1024 * 1024

// Checkpoint kinds.
const (
	KindSample = "sample"
	KindSim    = "sim"
)

// Header is the plain-text first line of a checkpoint file.
type Header struct {
	Version    int       `json:"version"`
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	CreatedAt  time.Time `json:"created_at"`
	Checksum   string    `json:"checksum"`
	Compressed bool      `json:"compressed"`
}

// CorruptCheckpointError reports a checkpoint that exists but cannot be
// trusted: unreadable header, wrong version or kind, checksum mismatch or
// undecodable payload.
type CorruptCheckpointError struct {
	Path   string
	Reason string
}

func (e *CorruptCheckpointError) Error() string {
	return fmt.Sprintf("corrupt checkpoint %s: %s", e.Path, e.Reason)
}

func checksumOf(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// Write encodes v as a checkpoint of the given kind at path. The file is
// written next to path and renamed into place, so a reader never sees a
// partial checkpoint.
func Write(path, kind, key string, v any) (*Header, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling checkpoint payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	header := Header{
		Version:    FormatVersion,
		Kind:       kind,
		Key:        key,
		CreatedAt:  time.Now().UTC(),
		Checksum:   checksumOf(compressed.Bytes()),
		Compressed: true,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("creating checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return nil, fmt.Errorf("renaming checkpoint into place: %w", err)
	}
	return &header, nil
}

func readHeader(r *bufio.Reader, path string) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, &CorruptCheckpointError{Path: path, Reason: "missing header line"}
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, &CorruptCheckpointError{Path: path, Reason: "unparseable header"}
	}
	if header.Version != FormatVersion {
		return nil, &CorruptCheckpointError{Path: path, Reason: fmt.Sprintf("unsupported version %d", header.Version)}
	}
	return &header, nil
}

// open reads the header line and returns the remaining compressed payload.
func open(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := readHeader(reader, path)
	if err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading checkpoint payload: %w", err)
	}
	return header, data, nil
}

// ReadHeader reads only the header line.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f), path)
}

// Verify checks the payload checksum without decompressing it.
func Verify(path string) (*Header, error) {
	header, data, err := open(path)
	if err != nil {
		return nil, err
	}
	if actual := checksumOf(data); actual != header.Checksum {
		return nil, &CorruptCheckpointError{Path: path, Reason: fmt.Sprintf("checksum mismatch: expected %s, got %s", header.Checksum, actual)}
	}
	return header, nil
}

// Read verifies the checkpoint at path and decodes its payload into v. When
// kind is non-empty the header must carry that kind.
func Read(path, kind string, v any) (*Header, error) {
	header, data, err := open(path)
	if err != nil {
		return nil, err
	}
	if kind != "" && header.Kind != kind {
		return nil, &CorruptCheckpointError{Path: path, Reason: fmt.Sprintf("kind %q, want %q", header.Kind, kind)}
	}
	if actual := checksumOf(data); actual != header.Checksum {
		return nil, &CorruptCheckpointError{Path: path, Reason: fmt.Sprintf("checksum mismatch: expected %s, got %s", header.Checksum, actual)}
	}

	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &CorruptCheckpointError{Path: path, Reason: "payload is not gzip"}
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, &CorruptCheckpointError{Path: path, Reason: "decompressing payload: " + err.Error()}
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, &CorruptCheckpointError{Path: path, Reason: fmt.Sprintf("payload exceeds %d bytes", MaxDecompressedSize)}
	}
	if err := json.Unmarshal(decompressed, v); err != nil {
		return nil, &CorruptCheckpointError{Path: path, Reason: "decoding payload: " + err.Error()}
	}
	return header, nil
}
