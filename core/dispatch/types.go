// Package dispatch implements the final stage of a submit_request call:
// parsing the decrypted payload into a tagged proof request, enforcing
// deploy policy and circuit-catalog membership, and handing the request
// off to the downstream job queue.
package dispatch

import "encoding/json"

// EndpointType is the chain/environment a disclose-family request
// targets.
type EndpointType string

const (
	EndpointCelo         EndpointType = "celo"
	EndpointHTTPS        EndpointType = "https"
	EndpointStagingCelo  EndpointType = "staging_celo"
	EndpointStagingHTTPS EndpointType = "staging_https"
	EndpointTestCelo     EndpointType = "test_celo"
	EndpointTestHTTPS    EndpointType = "test_https"
)

// ProofFamily groups the ten recognized request tags into the three
// families deploy policy gates on.
type ProofFamily string

const (
	FamilyRegister ProofFamily = "register"
	FamilyDSC      ProofFamily = "dsc"
	FamilyDisclose ProofFamily = "disclose"
)

// ProofType is one of the ten recognized tags carried in the decrypted
// payload's "type" field.
type ProofType string

const (
	TypeRegister         ProofType = "register"
	TypeDsc              ProofType = "dsc"
	TypeDisclose         ProofType = "disclose"
	TypeRegisterID       ProofType = "register_id"
	TypeDscID            ProofType = "dsc_id"
	TypeDiscloseID       ProofType = "disclose_id"
	TypeRegisterAadhaar  ProofType = "register_aadhaar"
	TypeDiscloseAadhaar  ProofType = "disclose_aadhaar"
	TypeRegisterKYC      ProofType = "register_kyc"
	TypeDiscloseKYC      ProofType = "disclose_kyc"
)

// family returns the deploy-policy family this proof type belongs to, or
// false if the tag is unrecognized.
func (t ProofType) family() (ProofFamily, bool) {
	switch t {
	case TypeRegister, TypeRegisterID, TypeRegisterAadhaar, TypeRegisterKYC:
		return FamilyRegister, true
	case TypeDsc, TypeDscID:
		return FamilyDSC, true
	case TypeDisclose, TypeDiscloseID, TypeDiscloseAadhaar, TypeDiscloseKYC:
		return FamilyDisclose, true
	default:
		return "", false
	}
}

// Circuit identifies the proving circuit a request targets. Extra
// generator-specific fields beyond the name are preserved verbatim so a
// downstream consumer that understands them can still read the request.
type Circuit struct {
	Name  string          `json:"name"`
	Extra json.RawMessage `json:"-"`
}

func (c *Circuit) UnmarshalJSON(data []byte) error {
	var probe struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	c.Name = probe.Name
	c.Extra = append(json.RawMessage(nil), data...)
	return nil
}

// ProofRequest is the flattened tagged union carried under "type" in the
// decrypted submit_request payload. Every field present in the payload is
// decoded whatever the request's type; the disclose-only fields are not
// rejected on register/dsc requests. Version defaults to 1 when absent,
// for every type.
type ProofRequest struct {
	Type    ProofType `json:"type"`
	Circuit Circuit   `json:"circuit"`

	EndpointType *EndpointType `json:"endpoint_type,omitempty"`
	Endpoint     *string       `json:"endpoint,omitempty"`

	UserDefinedData string `json:"user_defined_data,omitempty"`
	SelfDefinedData string `json:"self_defined_data,omitempty"`
	Version         uint32 `json:"version,omitempty"`
}

// SubmitRequest is the full decrypted submit_request payload.
type SubmitRequest struct {
	Onchain bool `json:"onchain"`
	ProofRequest
}

func (s *SubmitRequest) UnmarshalJSON(data []byte) error {
	type alias SubmitRequest
	aux := struct {
		*alias
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}

// Job is one proof request handed off to the downstream generation
// pipeline.
type Job struct {
	SessionID string
	Request   SubmitRequest
}
