package api

import (
	"encoding/base64"

	"github.com/heirvault/escrow-backend/interfaces"
)

// PlanProvider is the client-side contract for the plan service. Both the
// HTTP client and in-process stores satisfy it, so owner and trustee tooling
// can run against either.
type PlanProvider interface {
	interfaces.PlanAPI
}

// TrusteeShareResponse is the wire form of one released share. The ciphertext
// and IV are base64 encoded for JSON transport; decryption happens on the
// trustee's machine with their private key.
type TrusteeShareResponse struct {
	ShareIndex     int    `json:"share_index"`
	TrusteeEmail   string `json:"trustee_email"`
	EncryptedShare string `json:"encrypted_share"`
	IV             string `json:"iv"`
}

// NewTrusteeShareResponse encodes an encrypted share for transport.
func NewTrusteeShareResponse(s interfaces.EncryptedShare) TrusteeShareResponse {
	return TrusteeShareResponse{
		ShareIndex:     s.ShareIndex,
		TrusteeEmail:   s.TrusteeEmail,
		EncryptedShare: base64.StdEncoding.EncodeToString(s.EncryptedData),
		IV:             base64.StdEncoding.EncodeToString(s.IV),
	}
}

// Decode converts the wire form back into an encrypted share.
func (r TrusteeShareResponse) Decode() (interfaces.EncryptedShare, error) {
	data, err := base64.StdEncoding.DecodeString(r.EncryptedShare)
	if err != nil {
		return interfaces.EncryptedShare{}, err
	}
	iv, err := base64.StdEncoding.DecodeString(r.IV)
	if err != nil {
		return interfaces.EncryptedShare{}, err
	}
	return interfaces.EncryptedShare{
		EncryptedData: data,
		IV:            iv,
		TrusteeEmail:  r.TrusteeEmail,
		ShareIndex:    r.ShareIndex,
	}, nil
}
