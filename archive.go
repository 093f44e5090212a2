// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/tuneinsight/lattigo/v6/core/rgsw"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
)

// Archive layout: gob for lattice structures, explicit little-endian
// length prefixes for sections and sequences. Key archives, ciphertext
// blobs and result archives are separate files; the blob is the only
// format with random-access needs (the reversed stream walks it from
// the tail), so each record is length-prefixed.

// ========== sections ==========

func writeSection(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readSection(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func gobSection(w io.Writer, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	return writeSection(w, buf.Bytes())
}

func ungobSection(r io.Reader, v interface{}) error {
	data, err := readSection(r)
	if err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// ========== polynomials ==========

func serializePoly(w io.Writer, poly *ring.Poly) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(poly.Coeffs))); err != nil {
		return err
	}
	for _, coeffs := range poly.Coeffs {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(coeffs))); err != nil {
			return err
		}
		for _, c := range coeffs {
			if err := binary.Write(w, binary.LittleEndian, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func deserializePoly(r io.Reader) (*ring.Poly, error) {
	var levels uint32
	if err := binary.Read(r, binary.LittleEndian, &levels); err != nil {
		return nil, err
	}
	coeffs := make([][]uint64, levels)
	for i := range coeffs {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		coeffs[i] = make([]uint64, n)
		for j := range coeffs[i] {
			if err := binary.Read(r, binary.LittleEndian, &coeffs[i][j]); err != nil {
				return nil, err
			}
		}
	}
	return &ring.Poly{Coeffs: coeffs}, nil
}

// ========== secret key ==========

// WriteSecretKey serializes a secret key archive.
func WriteSecretKey(w io.Writer, sk *SecretKey) error {
	if err := gobSection(w, sk.SK); err != nil {
		return fmt.Errorf("serialize secret key: %w", err)
	}
	return nil
}

// ReadSecretKey deserializes a secret key archive.
func ReadSecretKey(r io.Reader) (*SecretKey, error) {
	var sk rlwe.SecretKey
	if err := ungobSection(r, &sk); err != nil {
		return nil, fmt.Errorf("%w: secret key archive: %v", ErrBadKey, err)
	}
	return &SecretKey{SK: &sk}, nil
}

// ========== gate key ==========

// WriteGateKey serializes a gate key archive.
func WriteGateKey(w io.Writer, gk *GateKey) error {
	if err := gobSection(w, gk.BRK); err != nil {
		return fmt.Errorf("serialize blind rotation key: %w", err)
	}
	if err := serializePoly(w, gk.TestPolySign); err != nil {
		return fmt.Errorf("serialize sign polynomial: %w", err)
	}
	if err := serializePoly(w, gk.TestPolyMask); err != nil {
		return fmt.Errorf("serialize mask polynomial: %w", err)
	}
	return nil
}

// ReadGateKey deserializes a gate key archive.
func ReadGateKey(r io.Reader) (*GateKey, error) {
	gk := new(GateKey)
	if err := ungobSection(r, &gk.BRK); err != nil {
		return nil, fmt.Errorf("%w: gate key archive: %v", ErrBadKey, err)
	}
	var err error
	if gk.TestPolySign, err = deserializePoly(r); err != nil {
		return nil, fmt.Errorf("%w: sign polynomial: %v", ErrBadKey, err)
	}
	if gk.TestPolyMask, err = deserializePoly(r); err != nil {
		return nil, fmt.Errorf("%w: mask polynomial: %v", ErrBadKey, err)
	}
	return gk, nil
}

// ========== composite bootstrapping key ==========

// WriteBootstrapKey serializes the composite bootstrapping-key record.
func WriteBootstrapKey(w io.Writer, bk *BootstrapKey) error {
	if err := WriteGateKey(w, bk.Gate); err != nil {
		return err
	}
	if err := gobSection(w, bk.Circuit.SchemeSwitch); err != nil {
		return fmt.Errorf("serialize scheme-switch key: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(bk.Circuit.TestPolyDigit))); err != nil {
		return err
	}
	for _, p := range bk.Circuit.TestPolyDigit {
		if err := serializePoly(w, p); err != nil {
			return fmt.Errorf("serialize digit polynomial: %w", err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(bk.IKS.Base)); err != nil {
		return err
	}
	if err := gobSection(w, bk.IKS.Rows); err != nil {
		return fmt.Errorf("serialize identity key-switch key: %w", err)
	}
	return nil
}

// ReadBootstrapKey deserializes the composite bootstrapping-key record.
func ReadBootstrapKey(r io.Reader) (*BootstrapKey, error) {
	gate, err := ReadGateKey(r)
	if err != nil {
		return nil, err
	}

	circuit := new(CircuitKey)
	var evk rlwe.EvaluationKey
	if err := ungobSection(r, &evk); err != nil {
		return nil, fmt.Errorf("%w: scheme-switch key: %v", ErrBadKey, err)
	}
	circuit.SchemeSwitch = &evk

	var digits uint32
	if err := binary.Read(r, binary.LittleEndian, &digits); err != nil {
		return nil, fmt.Errorf("%w: digit count: %v", ErrBadKey, err)
	}
	circuit.TestPolyDigit = make([]*ring.Poly, digits)
	for j := range circuit.TestPolyDigit {
		if circuit.TestPolyDigit[j], err = deserializePoly(r); err != nil {
			return nil, fmt.Errorf("%w: digit polynomial %d: %v", ErrBadKey, j, err)
		}
	}

	iks := new(IKSKey)
	var base uint32
	if err := binary.Read(r, binary.LittleEndian, &base); err != nil {
		return nil, fmt.Errorf("%w: identity key-switch base: %v", ErrBadKey, err)
	}
	iks.Base = int(base)
	if err := ungobSection(r, &iks.Rows); err != nil {
		return nil, fmt.Errorf("%w: identity key-switch key: %v", ErrBadKey, err)
	}

	return &BootstrapKey{Gate: gate, Circuit: circuit, IKS: iks}, nil
}

// ========== ciphertext blob ==========

// WriteBlob serializes a sequence of AP-Bits in stream order.
func WriteBlob(w io.Writer, bits []*APBit) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(bits))); err != nil {
		return err
	}
	for i, ap := range bits {
		if err := gobSection(w, ap.G.Ciphertext); err != nil {
			return fmt.Errorf("serialize AP-Bit %d TRGSW: %w", i, err)
		}
		if err := gobSection(w, ap.L.Ciphertext); err != nil {
			return fmt.Errorf("serialize AP-Bit %d TLWE: %w", i, err)
		}
	}
	return nil
}

// blobRecord holds the raw bytes of one AP-Bit, decoded lazily by the
// stream adapters.
type blobRecord struct {
	g, l []byte
}

// indexBlob scans a serialized blob and builds the per-record index.
// The AP-Bit count must be a multiple of the per-byte alphabet width.
func indexBlob(data []byte) ([]blobRecord, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: blob header: %v", ErrBadInput, err)
	}
	if count%8 != 0 {
		return nil, fmt.Errorf("%w: %d AP-Bits is not a multiple of the alphabet width", ErrBadInput, count)
	}
	recs := make([]blobRecord, count)
	for i := range recs {
		g, err := readSection(r)
		if err != nil {
			return nil, fmt.Errorf("%w: AP-Bit %d TRGSW: %v", ErrBadInput, i, err)
		}
		l, err := readSection(r)
		if err != nil {
			return nil, fmt.Errorf("%w: AP-Bit %d TLWE: %v", ErrBadInput, i, err)
		}
		recs[i] = blobRecord{g: g, l: l}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after last AP-Bit", ErrBadInput, r.Len())
	}
	return recs, nil
}

// decodeRecord decodes one AP-Bit from its raw record.
func decodeRecord(rec blobRecord) (*APBit, error) {
	g := new(rgsw.Ciphertext)
	if err := gob.NewDecoder(bytes.NewReader(rec.g)).Decode(g); err != nil {
		return nil, fmt.Errorf("%w: TRGSW record: %v", ErrBadInput, err)
	}
	l := new(rlwe.Ciphertext)
	if err := gob.NewDecoder(bytes.NewReader(rec.l)).Decode(l); err != nil {
		return nil, fmt.Errorf("%w: TLWE record: %v", ErrBadInput, err)
	}
	return &APBit{G: &TRGSW{g}, L: &TLWE{l}}, nil
}

// ========== result ==========

// WriteResult serializes an acceptance-bit ciphertext.
func WriteResult(w io.Writer, res *TLWE) error {
	return gobSection(w, res.Ciphertext)
}

// ReadResult deserializes an acceptance-bit ciphertext.
func ReadResult(r io.Reader) (*TLWE, error) {
	ct := new(rlwe.Ciphertext)
	if err := ungobSection(r, ct); err != nil {
		return nil, fmt.Errorf("%w: result archive: %v", ErrBadInput, err)
	}
	return &TLWE{ct}, nil
}
