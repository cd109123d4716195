package solarlog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/anicoll/solarlog-integration/internal/pkg/decoder"
)

const dataPath = "getjp"

// Query builds the device's JSON queries. It needs a session validated by
// the Manager and never logs in itself. Answers are returned as sent by the
// device, interpreting them is left to the caller.
type Query struct {
	transport *Transport
}

func NewQuery(transport *Transport) *Query {
	return &Query{transport: transport}
}

// FetchOverview asks for the basic data record plus the per-slot device
// list, power and status maps in one round trip.
func (q *Query) FetchOverview(ctx context.Context, s *Session) ([]byte, error) {
	return q.do(ctx, s, map[string]any{
		decoder.CodeBasicData:       map[string]any{decoder.CodeBasicRecord: nil},
		decoder.CodeDeviceList:      nil,
		decoder.CodePowerPerDevice:  nil,
		decoder.CodeStatusPerDevice: nil,
	})
}

// FetchInverterDetail asks for the name and live record of one device slot.
func (q *Query) FetchInverterDetail(ctx context.Context, s *Session, slot int) ([]byte, error) {
	key := strconv.Itoa(slot)
	return q.do(ctx, s, map[string]any{
		decoder.CodeDeviceConfig: map[string]any{key: map[string]any{decoder.CodeDeviceName: nil}},
		decoder.CodeDeviceLive:   map[string]any{key: nil},
	})
}

// FetchEnergy asks for the daily energy per device and the yearly totals.
func (q *Query) FetchEnergy(ctx context.Context, s *Session) ([]byte, error) {
	return q.do(ctx, s, map[string]any{
		decoder.CodeEnergyPerDevice: nil,
		decoder.CodeEnergyYear:      nil,
	})
}

// FetchDeviceList asks for the device list only.
func (q *Query) FetchDeviceList(ctx context.Context, s *Session) ([]byte, error) {
	return q.do(ctx, s, map[string]any{decoder.CodeDeviceList: nil})
}

// FetchBasic asks for the basic data record; it is answered without a session.
func (q *Query) FetchBasic(ctx context.Context, s *Session) ([]byte, error) {
	return q.do(ctx, s, map[string]any{
		decoder.CodeBasicData: map[string]any{decoder.CodeBasicRecord: nil},
	})
}

func (q *Query) do(ctx context.Context, s *Session, query map[string]any) ([]byte, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("solarlog: encode query: %w", err)
	}

	body := string(payload)
	header := http.Header{"Content-Type": {htmlMimeType}}
	if s != nil && s.Token != "" {
		header.Set("Cookie", cookieName+"="+s.Token)
		body = "token=" + s.Token + "; " + body
	}

	res, err := q.transport.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   dataPath,
		Body:   body,
		Header: header,
	})
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}
