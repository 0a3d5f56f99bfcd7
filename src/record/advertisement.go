package record

// Asset is a currency a peer settles in, with the number of decimal places of
// its smallest unit. Both fields are required on the wire.
type Asset struct {
	Code  string `json:"code" validate:"required"`
	Scale int    `json:"scale"`
}

// Settlement describes one way of settling balances with a peer.
type Settlement struct {
	Type    string  `json:"type" validate:"required"`
	Address string  `json:"address" validate:"required"`
	ChainID *int64  `json:"chainId,omitempty"`
	Token   *string `json:"token,omitempty"`
}

// PeerAdvertisement is the content of a peer-advertisement record. It tells
// other agents how to reach and peer with its author. An empty list is not
// written, so it reads back as absent.
type PeerAdvertisement struct {
	ILPAddress  string       `json:"ilpAddress" validate:"required"`
	BTPEndpoint string       `json:"btpEndpoint" validate:"required"`
	Assets      []Asset      `json:"assets,omitempty" validate:"dive"`
	Settlement  []Settlement `json:"settlement,omitempty" validate:"dive"`
	Relays      []string     `json:"relays,omitempty"`
}

// BuildPeerAdvertisement returns an unsigned record carrying adv.
func BuildPeerAdvertisement(adv *PeerAdvertisement, createdAt Timestamp) (*Record, error) {
	content, err := encodePayload(adv)
	if err != nil {
		return nil, err
	}
	return &Record{
		CreatedAt: createdAt,
		Kind:      KindPeerAdvertisement,
		Tags:      Tags{},
		Content:   content,
	}, nil
}

// ParsePeerAdvertisement extracts the advertisement carried by rec.
func ParsePeerAdvertisement(rec *Record) (*PeerAdvertisement, error) {
	if err := checkKind(rec, KindPeerAdvertisement); err != nil {
		return nil, err
	}
	adv := &PeerAdvertisement{}
	if err := decodePayload(rec, rec.Content, adv); err != nil {
		return nil, err
	}
	return adv, nil
}

// ValidPeerAdvertisement is a resolver validator accepting only records that
// parse as advertisements.
func ValidPeerAdvertisement(rec *Record) error {
	_, err := ParsePeerAdvertisement(rec)
	return err
}
