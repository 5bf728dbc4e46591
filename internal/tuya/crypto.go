package tuya

import (
	"crypto/aes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Key slice offsets within the channel password credential. The broker
// password embeds the 16-byte message key at a fixed position.
const (
	envelopeKeyStart = 8
	envelopeKeyEnd   = 24
)

// EnvelopeKey extracts the 16-byte AES key from the realtime channel's
// password credential.
func EnvelopeKey(password string) ([]byte, error) {
	if len(password) < envelopeKeyEnd {
		return nil, fmt.Errorf("%w: password too short for key slice", ErrDecrypt)
	}
	return []byte(password[envelopeKeyStart:envelopeKeyEnd]), nil
}

// rawEnvelope is the outer wire shape of a realtime message.
type rawEnvelope struct {
	Data      string `json:"data"`
	Protocol  int    `json:"protocol"`
	ProtocolV string `json:"pv"`
	Sign      string `json:"sign"`
	Timestamp int64  `json:"t"`
}

// DecryptEnvelope parses a raw realtime message, base64-decodes its data
// field, and decrypts it with AES-ECB/PKCS#5 under the given 16-byte key.
// Returns the plaintext payload bytes.
func DecryptEnvelope(message, key []byte) ([]byte, error) {
	var env rawEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return nil, fmt.Errorf("%w: parse outer message: %v", ErrEnvelope, err)
	}
	if env.Data == "" {
		return nil, fmt.Errorf("%w: empty data field", ErrEnvelope)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode data: %v", ErrEnvelope, err)
	}

	plaintext, err := decryptECB(ciphertext, key)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// decryptECB decrypts AES-ECB ciphertext and strips PKCS#5 padding.
func decryptECB(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	size := block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%size != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d not a multiple of block size", ErrDecrypt, len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += size {
		block.Decrypt(plaintext[i:i+size], ciphertext[i:i+size])
	}

	return stripPKCS5(plaintext, size)
}

// stripPKCS5 validates and removes PKCS#5 padding. A wrong key shows up
// here as implausible padding rather than as a cipher error.
func stripPKCS5(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecrypt)
	}
	pad := int(data[len(data)-1])
	if pad < 1 || pad > blockSize || pad > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecrypt)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecrypt)
		}
	}
	return data[:len(data)-pad], nil
}

// Payload is a decrypted realtime payload classified as exactly one of a
// device-status batch or a lifecycle event.
type Payload struct {
	Status    *StatusReport
	Lifecycle *LifecycleEvent
}

// ClassifyPayload parses plaintext JSON and routes it: a status field plus
// a device id reads as a status batch; a business code plus business data
// reads as a lifecycle event; anything else is an ErrEnvelope.
func ClassifyPayload(plaintext []byte) (Payload, error) {
	var probe struct {
		DevID   string          `json:"devId"`
		Status  json.RawMessage `json:"status"`
		BizCode string          `json:"bizCode"`
		BizData json.RawMessage `json:"bizData"`
	}
	if err := json.Unmarshal(plaintext, &probe); err != nil {
		return Payload{}, fmt.Errorf("%w: parse payload: %v", ErrEnvelope, err)
	}

	switch {
	case len(probe.Status) > 0 && probe.DevID != "":
		var report StatusReport
		if err := json.Unmarshal(plaintext, &report); err != nil {
			return Payload{}, fmt.Errorf("%w: parse status batch: %v", ErrEnvelope, err)
		}
		return Payload{Status: &report}, nil

	case probe.BizCode != "":
		var lc LifecycleEvent
		if err := json.Unmarshal(plaintext, &lc); err != nil {
			return Payload{}, fmt.Errorf("%w: parse lifecycle event: %v", ErrEnvelope, err)
		}
		return Payload{Lifecycle: &lc}, nil

	default:
		return Payload{}, fmt.Errorf("%w: unrecognized payload shape", ErrEnvelope)
	}
}
