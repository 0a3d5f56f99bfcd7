package record

// PaymentSetupInfo is the content of a payment-setup-static record: long-lived
// parameters a payer can use without a round trip.
type PaymentSetupInfo struct {
	DestinationAccount string `json:"destinationAccount" validate:"required"`
	SharedSecret       string `json:"sharedSecret" validate:"required,base64"`
	ReceiptsEnabled    *bool  `json:"receiptsEnabled,omitempty"`
}

// PaymentSetupRequest is the plaintext of a payment-setup-request record.
type PaymentSetupRequest struct {
	RequestID  string       `json:"requestId" validate:"required"`
	Timestamp  int64        `json:"timestamp"`
	ILPAddress string       `json:"ilpAddress,omitempty"`
	Settlement []Settlement `json:"settlement,omitempty" validate:"dive"`
}

// PaymentSetupResponse is the plaintext of a payment-setup-response record.
type PaymentSetupResponse struct {
	RequestID          string      `json:"requestId" validate:"required"`
	DestinationAccount string      `json:"destinationAccount" validate:"required"`
	SharedSecret       string      `json:"sharedSecret" validate:"required"`
	Settlement         *Settlement `json:"settlement,omitempty"`
}

// BuildPaymentSetupInfo returns an unsigned record carrying info.
func BuildPaymentSetupInfo(info *PaymentSetupInfo, createdAt Timestamp) (*Record, error) {
	content, err := encodePayload(info)
	if err != nil {
		return nil, err
	}
	return &Record{
		CreatedAt: createdAt,
		Kind:      KindPaymentSetupInfo,
		Tags:      Tags{},
		Content:   content,
	}, nil
}

// ParsePaymentSetupInfo extracts the static payment-setup info carried by rec.
func ParsePaymentSetupInfo(rec *Record) (*PaymentSetupInfo, error) {
	if err := checkKind(rec, KindPaymentSetupInfo); err != nil {
		return nil, err
	}
	info := &PaymentSetupInfo{}
	if err := decodePayload(rec, rec.Content, info); err != nil {
		return nil, err
	}
	return info, nil
}

// ValidPaymentSetupInfo is a resolver validator for static info records.
func ValidPaymentSetupInfo(rec *Record) error {
	_, err := ParsePaymentSetupInfo(rec)
	return err
}

// EncodeRequest serializes a request before encryption.
func EncodeRequest(req *PaymentSetupRequest) (string, error) {
	return encodePayload(req)
}

// DecodeRequest parses a decrypted request.
func DecodeRequest(plaintext string) (*PaymentSetupRequest, error) {
	req := &PaymentSetupRequest{}
	if err := decodePayload(nil, plaintext, req); err != nil {
		return nil, err
	}
	return req, nil
}

// EncodeResponse serializes a response before encryption.
func EncodeResponse(resp *PaymentSetupResponse) (string, error) {
	return encodePayload(resp)
}

// DecodeResponse parses a decrypted response.
func DecodeResponse(plaintext string) (*PaymentSetupResponse, error) {
	resp := &PaymentSetupResponse{}
	if err := decodePayload(nil, plaintext, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// BuildRequestRecord wraps an encrypted request addressed to recipient. The
// request id stays inside the ciphertext.
func BuildRequestRecord(ciphertext string, recipient string, createdAt Timestamp) *Record {
	return &Record{
		CreatedAt: createdAt,
		Kind:      KindPaymentSetupRequest,
		Tags:      Tags{Tag{"p", recipient}},
		Content:   ciphertext,
	}
}

// BuildResponseRecord wraps an encrypted response to the request record
// requestRecordID, sent by requester.
func BuildResponseRecord(ciphertext string, requester string, requestRecordID string, createdAt Timestamp) *Record {
	return &Record{
		CreatedAt: createdAt,
		Kind:      KindPaymentSetupResponse,
		Tags:      Tags{Tag{"p", requester}, Tag{"e", requestRecordID}},
		Content:   ciphertext,
	}
}

// Recipient returns the identity a correlated record is addressed to.
func Recipient(rec *Record) (string, error) {
	if rec == nil {
		return "", invalid(nil, "nil record")
	}
	if rec.Kind != KindPaymentSetupRequest && rec.Kind != KindPaymentSetupResponse {
		return "", invalid(rec, "kind %d is not correlated", rec.Kind)
	}
	p := FirstTag(rec, "p")
	if p == "" {
		return "", invalid(rec, "missing p tag")
	}
	return p, nil
}
