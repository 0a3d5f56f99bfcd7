package record

import (
	"strings"
	"testing"

	"github.com/nostrpay/peerd/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool     { return &v }
func strPtr(v string) *string  { return &v }

func TestPeerAdvertisementRoundTrip(t *testing.T) {
	cases := map[string]*PeerAdvertisement{
		"required only": {
			ILPAddress:  "g.agent.alice",
			BTPEndpoint: "btp+wss://alice.example/btp",
		},
		"all fields": {
			ILPAddress:  "g.agent.bob",
			BTPEndpoint: "btp+wss://bob.example/btp",
			Assets:      []Asset{{Code: "USD", Scale: 9}, {Code: "XRP", Scale: 6}},
			Settlement: []Settlement{
				{Type: "evm", Address: "0xabc", ChainID: int64Ptr(8453), Token: strPtr("0xusdc")},
				{Type: "xrp", Address: "rBob"},
			},
			Relays: []string{"wss://relay.one", "wss://relay.two"},
		},
	}

	for name, adv := range cases {
		t.Run(name, func(t *testing.T) {
			rec, err := BuildPeerAdvertisement(adv, 1700000000)
			require.NoError(t, err)
			assert.Equal(t, KindPeerAdvertisement, rec.Kind)

			parsed, err := ParsePeerAdvertisement(rec)
			require.NoError(t, err)
			assert.Equal(t, adv, parsed)
		})
	}
}

func TestOptionalFieldsStayAbsent(t *testing.T) {
	adv := &PeerAdvertisement{ILPAddress: "g.a", BTPEndpoint: "btp+ws://a"}
	rec, err := BuildPeerAdvertisement(adv, 1)
	require.NoError(t, err)

	for _, field := range []string{"assets", "settlement", "relays"} {
		assert.NotContains(t, rec.Content, field)
	}

	parsed, err := ParsePeerAdvertisement(rec)
	require.NoError(t, err)
	assert.Nil(t, parsed.Assets)
	assert.Nil(t, parsed.Settlement)
	assert.Nil(t, parsed.Relays)

	info := &PaymentSetupInfo{DestinationAccount: "g.a.x", SharedSecret: "c2VjcmV0"}
	infoRec, err := BuildPaymentSetupInfo(info, 1)
	require.NoError(t, err)
	parsedInfo, err := ParsePaymentSetupInfo(infoRec)
	require.NoError(t, err)
	assert.Nil(t, parsedInfo.ReceiptsEnabled)

	info.ReceiptsEnabled = boolPtr(false)
	infoRec, err = BuildPaymentSetupInfo(info, 1)
	require.NoError(t, err)
	parsedInfo, err = ParsePaymentSetupInfo(infoRec)
	require.NoError(t, err)
	require.NotNil(t, parsedInfo.ReceiptsEnabled)
	assert.False(t, *parsedInfo.ReceiptsEnabled)
}

func TestParsePeerAdvertisementRejects(t *testing.T) {
	cases := map[string]*Record{
		"wrong kind":      {Kind: KindPaymentSetupInfo, Content: `{"ilpAddress":"g.a","btpEndpoint":"x"}`},
		"not json":        {Kind: KindPeerAdvertisement, Content: `not json`},
		"json array":      {Kind: KindPeerAdvertisement, Content: `["g.a"]`},
		"null":            {Kind: KindPeerAdvertisement, Content: `null`},
		"missing address": {Kind: KindPeerAdvertisement, Content: `{"btpEndpoint":"x"}`},
		"empty endpoint":  {Kind: KindPeerAdvertisement, Content: `{"ilpAddress":"g.a","btpEndpoint":""}`},
		"address number":  {Kind: KindPeerAdvertisement, Content: `{"ilpAddress":5,"btpEndpoint":"x"}`},
		"float scale":     {Kind: KindPeerAdvertisement, Content: `{"ilpAddress":"g.a","btpEndpoint":"x","assets":[{"code":"USD","scale":2.5}]}`},
		"string scale":    {Kind: KindPeerAdvertisement, Content: `{"ilpAddress":"g.a","btpEndpoint":"x","assets":[{"code":"USD","scale":"2"}]}`},
		"relays object":   {Kind: KindPeerAdvertisement, Content: `{"ilpAddress":"g.a","btpEndpoint":"x","relays":{}}`},
		"missing scale":   {Kind: KindPeerAdvertisement, Content: `{"ilpAddress":"g.a","btpEndpoint":"x","assets":[{"code":"USD"}]}`},
		"null scale":      {Kind: KindPeerAdvertisement, Content: `{"ilpAddress":"g.a","btpEndpoint":"x","assets":[{"code":"USD","scale":null}]}`},
		"null asset":      {Kind: KindPeerAdvertisement, Content: `{"ilpAddress":"g.a","btpEndpoint":"x","assets":[null]}`},
		"settlement type": {Kind: KindPeerAdvertisement, Content: `{"ilpAddress":"g.a","btpEndpoint":"x","settlement":[{"address":"0xa"}]}`},
	}

	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePeerAdvertisement(rec)
			assert.True(t, common.Is(err, common.InvalidRecord), "got %v", err)
		})
	}

	_, err := ParsePeerAdvertisement(nil)
	assert.True(t, common.Is(err, common.InvalidRecord))
}

func TestUnknownFieldsIgnored(t *testing.T) {
	rec := &Record{
		Kind:    KindPeerAdvertisement,
		Tags:    Tags{Tag{"x-future", "1"}},
		Content: `{"ilpAddress":"g.a","btpEndpoint":"btp+ws://a","fee":{"rate":3},"v":2}`,
	}
	adv, err := ParsePeerAdvertisement(rec)
	require.NoError(t, err)
	assert.Equal(t, "g.a", adv.ILPAddress)
}

func TestFieldNamesMatchExactly(t *testing.T) {
	rec := &Record{
		Kind:    KindPeerAdvertisement,
		Content: `{"ilpAddress":"g.alice","btpEndpoint":"b","IlpAddress":"g.evil","ILPADDRESS":5,"assets":[{"code":"USD","scale":2,"Code":"EUR"}]}`,
	}
	adv, err := ParsePeerAdvertisement(rec)
	require.NoError(t, err)
	assert.Equal(t, "g.alice", adv.ILPAddress)
	assert.Equal(t, []Asset{{Code: "USD", Scale: 2}}, adv.Assets)

	// a key differing only in case does not stand in for a required one
	rec.Content = `{"ILPAddress":"g.alice","btpEndpoint":"b"}`
	_, err = ParsePeerAdvertisement(rec)
	assert.True(t, common.Is(err, common.InvalidRecord), "got %v", err)

	resp, err := DecodeResponse(`{"requestId":"r1","destinationAccount":"g.b.r1","sharedSecret":"s","SharedSecret":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, "s", resp.SharedSecret)
}

func TestEmptyListsParseAsAbsent(t *testing.T) {
	adv := &PeerAdvertisement{
		ILPAddress:  "g.a",
		BTPEndpoint: "btp+ws://a",
		Assets:      []Asset{},
		Relays:      []string{},
	}
	rec, err := BuildPeerAdvertisement(adv, 1)
	require.NoError(t, err)
	assert.NotContains(t, rec.Content, "relays")

	parsed, err := ParsePeerAdvertisement(rec)
	require.NoError(t, err)
	assert.Nil(t, parsed.Assets)
	assert.Nil(t, parsed.Relays)

	rec.Content = `{"ilpAddress":"g.a","btpEndpoint":"btp+ws://a","relays":[]}`
	parsed, err = ParsePeerAdvertisement(rec)
	require.NoError(t, err)
	assert.Empty(t, parsed.Relays)
}

func TestRequestResponsePayloads(t *testing.T) {
	req := &PaymentSetupRequest{RequestID: "r1", Timestamp: 1700000000}
	plaintext, err := EncodeRequest(req)
	require.NoError(t, err)
	decoded, err := DecodeRequest(plaintext)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)

	_, err = DecodeRequest(`{"requestId":"r1"}`)
	assert.True(t, common.Is(err, common.InvalidRecord))
	_, err = DecodeRequest(`{"requestId":"r1","timestamp":1.5}`)
	assert.True(t, common.Is(err, common.InvalidRecord))

	resp := &PaymentSetupResponse{
		RequestID:          "r1",
		DestinationAccount: "g.bob.r1",
		SharedSecret:       "c2VjcmV0",
		Settlement:         &Settlement{Type: "evm", Address: "0xb"},
	}
	plaintext, err = EncodeResponse(resp)
	require.NoError(t, err)
	decodedResp, err := DecodeResponse(plaintext)
	require.NoError(t, err)
	assert.Equal(t, resp, decodedResp)

	_, err = DecodeResponse(`{"requestId":"r1","destinationAccount":"g.b"}`)
	assert.True(t, common.Is(err, common.InvalidRecord))
}

func TestCorrelatedRecords(t *testing.T) {
	bob := strings.Repeat("b", 64)
	alice := strings.Repeat("a", 64)

	req := BuildRequestRecord("cipher", bob, 10)
	assert.Equal(t, KindPaymentSetupRequest, req.Kind)
	p, err := Recipient(req)
	require.NoError(t, err)
	assert.Equal(t, bob, p)

	resp := BuildResponseRecord("cipher", alice, "req-id", 11)
	p, err = Recipient(resp)
	require.NoError(t, err)
	assert.Equal(t, alice, p)
	assert.Equal(t, "req-id", FirstTag(resp, "e"))

	_, err = Recipient(&Record{Kind: KindPaymentSetupRequest})
	assert.True(t, common.Is(err, common.InvalidRecord))
}

func TestFollowList(t *testing.T) {
	a := strings.Repeat("a", 64)
	b := strings.Repeat("b", 64)
	c := strings.Repeat("c", 64)

	edges := []FollowEdge{
		{To: a},
		{To: b, RelayHint: "wss://relay.b"},
		{To: c, Label: "carol"},
	}
	rec := BuildFollowList(edges, 5)
	rec.PubKey = strings.Repeat("f", 64)
	rec.Tags = append(rec.Tags, Tag{"t", "ilp"}, Tag{"p", "not-a-key"}, Tag{"p"}, Tag{"p", a})

	parsed, err := ParseFollowList(rec)
	require.NoError(t, err)
	require.Len(t, parsed, 4)
	assert.Equal(t, FollowEdge{From: rec.PubKey, To: a}, parsed[0])
	assert.Equal(t, FollowEdge{From: rec.PubKey, To: b, RelayHint: "wss://relay.b"}, parsed[1])
	assert.Equal(t, FollowEdge{From: rec.PubKey, To: c, Label: "carol"}, parsed[2])

	targets := Targets(parsed)
	assert.Len(t, targets, 3)

	_, err = ParseFollowList(&Record{Kind: KindPeerAdvertisement})
	assert.True(t, common.Is(err, common.InvalidRecord))
}

func TestIsReplaceable(t *testing.T) {
	for _, k := range []int{0, KindFollowList, KindPeerAdvertisement, KindPaymentSetupInfo} {
		assert.True(t, IsReplaceable(k), KindName(k))
	}
	for _, k := range []int{1, KindPaymentSetupRequest, KindPaymentSetupResponse, 30000} {
		assert.False(t, IsReplaceable(k), KindName(k))
	}
}
