// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package dfa

import (
	"github.com/tuneinsight/lattigo/v6/core/rgsw"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
)

// APBit is one encrypted atomic proposition as it travels through the
// ciphertext blob: the TRGSW form drives CMUX selection and the TLWE
// form feeds circuit bootstrapping in the batched LUT runner.
type APBit struct {
	G *TRGSW
	L *TLWE
}

// Encryptor encrypts plaintext bits into AP-Bits.
type Encryptor struct {
	params  Parameters
	rgswEnc *rgsw.Encryptor
	rlweEnc *rlwe.Encryptor
	ringQ   *ring.Ring
}

// NewEncryptor creates a new encryptor from a secret key.
func NewEncryptor(params Parameters, sk *SecretKey) *Encryptor {
	return &Encryptor{
		params:  params,
		rgswEnc: rgsw.NewEncryptor(params.rlweParams, sk.SK),
		rlweEnc: rlwe.NewEncryptor(params.rlweParams, sk.SK),
		ringQ:   params.RingQ(),
	}
}

// EncryptBit encrypts one Boolean atomic proposition.
func (enc *Encryptor) EncryptBit(b bool) (*APBit, error) {
	g, err := enc.encryptTRGSW(b)
	if err != nil {
		return nil, err
	}
	l, err := enc.encryptTLWE(b)
	if err != nil {
		return nil, err
	}
	return &APBit{G: g, L: l}, nil
}

// encryptTRGSW encrypts the bit as the constant polynomial 0 or 1.
func (enc *Encryptor) encryptTRGSW(b bool) (*TRGSW, error) {
	pt := rlwe.NewPlaintext(enc.params.rlweParams, enc.params.MaxLevel())
	if b {
		pt.Value.Coeffs[0][0] = 1
	}
	enc.ringQ.NTT(pt.Value, pt.Value)
	pt.IsNTT = true

	params := enc.params.rlweParams
	ct := rgsw.NewCiphertext(params, params.MaxLevelQ(), params.MaxLevelP(), enc.params.baseTwo)
	if err := enc.rgswEnc.Encrypt(pt, ct); err != nil {
		return nil, err
	}
	return &TRGSW{ct}, nil
}

// encryptTLWE encrypts the bit sign-encoded in slot 0.
func (enc *Encryptor) encryptTLWE(b bool) (*TLWE, error) {
	pt := rlwe.NewPlaintext(enc.params.rlweParams, enc.params.MaxLevel())
	if b {
		pt.Value.Coeffs[0][0] = enc.params.muTrue()
	} else {
		pt.Value.Coeffs[0][0] = enc.params.muFalse()
	}
	enc.ringQ.NTT(pt.Value, pt.Value)
	pt.IsNTT = true

	ct := newCiphertext(enc.params)
	if err := enc.rlweEnc.Encrypt(pt, ct); err != nil {
		return nil, err
	}
	return &TLWE{ct}, nil
}

// EncryptBytes encrypts a plaintext byte sequence as AP-Bits, eight
// per byte, least-significant bit first. The bit order is contractual:
// the stream readers and the plaintext test model use the same
// convention.
func (enc *Encryptor) EncryptBytes(data []byte) ([]*APBit, error) {
	bits := make([]*APBit, 0, len(data)*8)
	for _, v := range data {
		for i := 0; i < 8; i++ {
			ap, err := enc.EncryptBit((v>>i)&1 == 1)
			if err != nil {
				return nil, err
			}
			bits = append(bits, ap)
		}
	}
	return bits, nil
}
