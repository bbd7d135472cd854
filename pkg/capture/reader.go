// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package capture

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

// Reader iterates the records of a capture
type Reader struct {
	dec    *cbor.Decoder
	closer io.Closer
}

// NewReader reads records from in
func NewReader(in io.Reader) (*Reader, error) {
	dm, err := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 16,
		MaxMapPairs:      16,
		MaxNestedLevels:  4,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR decoder: %w", err)
	}
	return &Reader{dec: dm.NewDecoder(in)}, nil
}

// Open opens a capture file
func Open(path string) (*Reader, error) {
	// #nosec G304 -- capture paths are provided by the operator
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Next returns the next record, or io.EOF after the last one
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("corrupt capture record: %w", err)
	}
	if rec.Kind < KindCommand || rec.Kind > KindHeartbeat {
		return nil, fmt.Errorf("corrupt capture record: unknown kind %d", rec.Kind)
	}
	if len(rec.Raw) > extctl.MaxDatagram {
		return nil, fmt.Errorf("corrupt capture record: datagram of %d bytes", len(rec.Raw))
	}
	return &rec, nil
}

// ReadAll returns every remaining record
func (r *Reader) ReadAll() ([]*Record, error) {
	var records []*Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// Close closes the file opened by Open
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
